package gateway

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"

	"github.com/felixgeelhaar/lostfound/internal/errors"
)

// DefaultMaxImageBytes is the default attachment size limit (5 MiB).
const DefaultMaxImageBytes int64 = 5 << 20

// DefaultImageTypes are the raster formats the backend stores.
var DefaultImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// Image rejection reasons, used as metric labels.
const (
	rejectEmpty    = "empty"
	rejectTooLarge = "too_large"
	rejectType     = "type"
)

// ImagePolicy bounds what may be attached to a new item.
type ImagePolicy struct {
	MaxBytes     int64
	AllowedTypes []string
}

// DefaultImagePolicy returns the 5 MiB jpeg/png/gif/webp policy
func DefaultImagePolicy() ImagePolicy {
	return ImagePolicy{
		MaxBytes:     DefaultMaxImageBytes,
		AllowedTypes: slices.Clone(DefaultImageTypes),
	}
}

func (p ImagePolicy) normalize() ImagePolicy {
	if p.MaxBytes <= 0 {
		p.MaxBytes = DefaultMaxImageBytes
	}
	if len(p.AllowedTypes) == 0 {
		p.AllowedTypes = slices.Clone(DefaultImageTypes)
	}
	return p
}

// Image is an attachment that passed the policy, ready to inline.
type Image struct {
	Name        string
	ContentType string
	Size        int64
	DataURI     string
}

// imageRejection is a policy violation with its metric reason
type imageRejection struct {
	reason string
	err    *errors.Failure
}

// PrepareImageFile reads path and checks it against the policy
func (p ImagePolicy) PrepareImageFile(path string) (*Image, error) {
	p = p.normalize()

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.KindValidation, errors.ErrCodeFileReadFailed,
			fmt.Sprintf("cannot read image %s", path), err)
	}
	defer f.Close()

	// Read one byte past the limit so oversize files are detected
	// without loading them entirely.
	data, err := io.ReadAll(io.LimitReader(f, p.MaxBytes+1))
	if err != nil {
		return nil, errors.Wrap(errors.KindValidation, errors.ErrCodeFileReadFailed,
			fmt.Sprintf("cannot read image %s", path), err)
	}
	if int64(len(data)) > p.MaxBytes {
		if info, statErr := f.Stat(); statErr == nil {
			return nil, p.tooLarge(filepath.Base(path), info.Size()).err
		}
	}
	return p.PrepareImage(filepath.Base(path), data)
}

// PrepareImage checks data against the policy and encodes it as a data URI
func (p ImagePolicy) PrepareImage(name string, data []byte) (*Image, error) {
	if rej := p.check(name, data); rej != nil {
		return nil, rej.err
	}
	mt := mimetype.Detect(data)
	contentType := canonicalType(mt)
	return &Image{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		DataURI:     "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data),
	}, nil
}

func (p ImagePolicy) check(name string, data []byte) *imageRejection {
	p = p.normalize()

	if len(data) == 0 {
		return &imageRejection{
			reason: rejectEmpty,
			err:    errors.New(errors.KindValidation, errors.ErrCodeInputInvalid, fmt.Sprintf("image %s is empty", name)),
		}
	}
	if int64(len(data)) > p.MaxBytes {
		return p.tooLarge(name, int64(len(data)))
	}

	mt := mimetype.Detect(data)
	contentType := canonicalType(mt)
	if !slices.Contains(p.AllowedTypes, contentType) {
		return &imageRejection{
			reason: rejectType,
			err: errors.New(errors.KindValidation, errors.ErrCodeInputImageType,
				fmt.Sprintf("image %s has unsupported type %s", name, mt.String())).
				WithSuggestion(fmt.Sprintf("Use one of: %v", p.AllowedTypes)),
		}
	}
	return nil
}

func (p ImagePolicy) tooLarge(name string, size int64) *imageRejection {
	return &imageRejection{
		reason: rejectTooLarge,
		err: errors.New(errors.KindValidation, errors.ErrCodeInputImageTooBig,
			fmt.Sprintf("image %s is %s, larger than the %s limit",
				name, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(p.MaxBytes)))).
			WithSuggestion("Resize or compress the image and try again"),
	}
}

// canonicalType drops parameters such as charset from a detected type
func canonicalType(mt *mimetype.MIME) string {
	base, _, _ := strings.Cut(mt.String(), ";")
	return strings.ToLower(strings.TrimSpace(base))
}
