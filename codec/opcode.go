package codec

import "strconv"

// Opcode is the command identifier stored in the first header byte.
type Opcode uint8

// Firmware command identifiers.
const (
	OpSync            Opcode = 10
	OpRestart         Opcode = 11
	OpVideoMode       Opcode = 13
	OpBrightness      Opcode = 14
	OpFrameRate       Opcode = 15
	OpOpenFile        Opcode = 38
	OpWriteFile       Opcode = 39
	OpConfigureScreen Opcode = 41
	OpDeleteFile      Opcode = 42
	OpPlayFile        Opcode = 98
	OpListStorage     Opcode = 99
	OpRefreshStorage  Opcode = 100
	OpImage           Opcode = 102
	OpPlayVideoFile   Opcode = 110
	OpStopVideo       Opcode = 111
	OpResetVideo      Opcode = 112
	OpPlayImageFile   Opcode = 113
	OpStopImage       Opcode = 114
	OpVideoChunk      Opcode = 121
	OpBufferStatus    Opcode = 122
	OpVideoEnd        Opcode = 123
	OpSaveSettings    Opcode = 125
)

var opcodeNames = map[Opcode]string{
	OpSync:            "sync",
	OpRestart:         "restart",
	OpVideoMode:       "video-mode",
	OpBrightness:      "brightness",
	OpFrameRate:       "frame-rate",
	OpOpenFile:        "open-file",
	OpWriteFile:       "write-file",
	OpConfigureScreen: "configure-screen",
	OpDeleteFile:      "delete-file",
	OpPlayFile:        "play-file",
	OpListStorage:     "list-storage",
	OpRefreshStorage:  "refresh-storage",
	OpImage:           "image",
	OpPlayVideoFile:   "play-video-file",
	OpStopVideo:       "stop-video",
	OpResetVideo:      "reset-video",
	OpPlayImageFile:   "play-image-file",
	OpStopImage:       "stop-image",
	OpVideoChunk:      "video-chunk",
	OpBufferStatus:    "buffer-status",
	OpVideoEnd:        "video-end",
	OpSaveSettings:    "save-settings",
}

// String returns the command name, or the numeric ID for unknown opcodes.
func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return "opcode(" + strconv.Itoa(int(o)) + ")"
}
