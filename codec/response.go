package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path"
	"strings"

	"github.com/ardnew/turingscreen/pkg"
)

// Response is a plaintext device reply.
type Response struct {
	Data []byte
}

// statusOffset is the reply byte holding the command status or buffer level.
const statusOffset = 8

// ParseResponse wraps a raw reply. Replies carry no integrity field.
func ParseResponse(b []byte) (Response, error) {
	if len(b) == 0 {
		return Response{}, fmt.Errorf("empty reply: %w", pkg.ErrMalformedFrame)
	}
	return Response{Data: b}, nil
}

// Status returns the status byte of the reply. ok is false when the reply is
// too short to carry one.
func (r Response) Status() (status byte, ok bool) {
	if len(r.Data) <= statusOffset {
		return 0, false
	}
	return r.Data[statusOffset], true
}

// StorageInfo reports the capacity of the device storage card in bytes.
type StorageInfo struct {
	Total uint64
	Used  uint64
	Valid uint64
}

// ParseStorageInfo decodes a refresh-storage reply. The firmware reports each
// field in KiB.
func ParseStorageInfo(r Response) (StorageInfo, error) {
	if len(r.Data) < 20 {
		return StorageInfo{}, fmt.Errorf("storage reply %d bytes, need 20: %w",
			len(r.Data), pkg.ErrMalformedFrame)
	}
	kib := func(off int) uint64 {
		return uint64(binary.LittleEndian.Uint32(r.Data[off:])) << 10
	}
	return StorageInfo{
		Total: kib(8),
		Used:  kib(12),
		Valid: kib(16),
	}, nil
}

// StorageKind selects a storage directory on the device.
type StorageKind int

const (
	StorageImage StorageKind = iota
	StorageVideo
)

// Device storage directories.
const (
	ImageDir = "/tmp/sdcard/mmcblk0p1/img/"
	VideoDir = "/tmp/sdcard/mmcblk0p1/video/"
)

// Dir returns the device directory holding files of kind k.
func (k StorageKind) Dir() string {
	if k == StorageVideo {
		return VideoDir
	}
	return ImageDir
}

func (k StorageKind) String() string {
	switch k {
	case StorageImage:
		return "image"
	case StorageVideo:
		return "video"
	default:
		return fmt.Sprintf("StorageKind(%d)", int(k))
	}
}

// ParseStorageKind converts "image" or "video" to a StorageKind.
func ParseStorageKind(s string) (StorageKind, error) {
	switch strings.ToLower(s) {
	case "image", "img":
		return StorageImage, nil
	case "video":
		return StorageVideo, nil
	default:
		return 0, fmt.Errorf("storage kind %q: %w", s, pkg.ErrInvalidParameter)
	}
}

// KindForFile returns the storage kind implied by a file extension. Only
// .png and .h264 files are stored on the device.
func KindForFile(name string) (StorageKind, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		return StorageImage, nil
	case ".h264":
		return StorageVideo, nil
	default:
		return 0, fmt.Errorf("unsupported file type %q: %w", name, pkg.ErrInvalidParameter)
	}
}

// StorageEntry is one file reported by a storage listing. Size is zero when
// the firmware does not report it.
type StorageEntry struct {
	Name string
	Size int64
	Kind StorageKind
}

var listingMarker = []byte("file:")

// ParseListing decodes the concatenated replies of a list-storage command.
// An empty reply is an empty directory.
func ParseListing(data []byte, kind StorageKind) ([]StorageEntry, error) {
	if len(data) == 0 {
		return nil, nil
	}
	i := bytes.LastIndex(data, listingMarker)
	if i < 0 {
		return nil, fmt.Errorf("listing without %q marker: %w", listingMarker, pkg.ErrMalformedFrame)
	}
	names := strings.Split(strings.TrimRight(string(data[i+len(listingMarker):]), "/\x00"), "/")
	entries := make([]StorageEntry, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(strings.Trim(n, "\x00"))
		if n == "" {
			continue
		}
		entries = append(entries, StorageEntry{Name: n, Kind: kind})
	}
	return entries, nil
}

// PathArgs builds the header arguments of the path-carrying commands: a
// big-endian length, four zero bytes, then the path.
func PathArgs(p string) ([]byte, error) {
	if len(p) > MaxArgs-8 {
		return nil, fmt.Errorf("path %d bytes: %w", len(p), pkg.ErrPayloadTooLarge)
	}
	args := make([]byte, 8+len(p))
	binary.BigEndian.PutUint32(args, uint32(len(p)))
	copy(args[8:], p)
	return args, nil
}

// PathFromArgs extracts the path from arguments built by PathArgs.
func PathFromArgs(args []byte) (string, error) {
	if len(args) < 8 {
		return "", fmt.Errorf("path arguments %d bytes: %w", len(args), pkg.ErrMalformedFrame)
	}
	n := int(binary.BigEndian.Uint32(args))
	if 8+n > len(args) {
		return "", fmt.Errorf("path length %d exceeds arguments: %w", n, pkg.ErrMalformedFrame)
	}
	return string(args[8 : 8+n]), nil
}
