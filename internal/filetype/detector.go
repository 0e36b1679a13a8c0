package filetype

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind is the role a detected file can play in a merge.
type Kind int

const (
	KindUnsupported Kind = iota
	KindImage
	KindArchive
)

const comicBookZip = "application/vnd.comicbook+zip"

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Kind        Kind
	Supported   bool
	Description string
}

// IsImage reports whether the file is a page image we can decode.
func (i *FileTypeInfo) IsImage() bool { return i.Kind == KindImage }

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect detects the actual type of a file on disk using magic bytes, not filename.
func (d *Detector) Detect(filePath string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	info := d.fromMIME(mtype, filepath.Ext(filePath))
	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Str("file", filePath).Msg("detected file type")
	return info, nil
}

// DetectBytes detects the type of an in-memory buffer. Only the header is
// inspected, so callers may pass a prefix of the content.
func (d *Detector) DetectBytes(data []byte, name string) *FileTypeInfo {
	return d.fromMIME(mimetype.Detect(data), filepath.Ext(name))
}

// DetectReader detects the type from the head of r.
func (d *Detector) DetectReader(r io.Reader, name string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to detect type of %s: %w", name, err)
	}
	return d.fromMIME(mtype, filepath.Ext(name)), nil
}

func (d *Detector) fromMIME(mtype *mimetype.MIME, nameExt string) *FileTypeInfo {
	mimeType := mtype.String()
	extension := mtype.Extension()

	// Comic archives are plain zips; trust the name only once the bytes say zip.
	if mimeType == "application/zip" || strings.Contains(mimeType, "application/x-zip") {
		if ext := strings.ToLower(nameExt); ext == ".cbz" {
			mimeType = comicBookZip
			extension = ".cbz"
		}
	}

	info := &FileTypeInfo{
		MIMEType:  mimeType,
		Extension: extension,
	}
	d.classify(info)
	return info
}

// classify determines whether the file can take part in a merge
func (d *Detector) classify(info *FileTypeInfo) {
	switch info.MIMEType {
	case "image/jpeg":
		info.Kind = KindImage
		info.Supported = true
		info.Extension = ".jpg"
		info.Description = "JPEG image"

	case "image/png":
		info.Kind = KindImage
		info.Supported = true
		info.Description = "PNG image"

	case "image/webp":
		info.Kind = KindImage
		info.Supported = true
		info.Description = "WebP image"

	case comicBookZip:
		info.Kind = KindArchive
		info.Supported = true
		info.Description = "Comic book archive"

	case "application/zip":
		info.Kind = KindArchive
		info.Supported = true
		info.Description = "ZIP archive"

	case "application/x-rar-compressed", "application/vnd.rar":
		info.Description = "RAR archive (cbr) is not supported"

	default:
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
}
