package reader

import (
	"fmt"

	"github.com/vellumpdf/vellum/core"
	"github.com/vellumpdf/vellum/pages"
)

// ImageObject is an image XObject prepared for an external codec.
//
// For DCTDecode and JPXDecode streams Data holds the still-compressed
// JPEG or JPEG2000 bytes and Encoded is true; a JPEG/JPEG2000 decoder
// turns them into pixel samples using Width, Height, Components and
// BitsPerComponent. For every other filter chain Data holds fully
// decoded raw samples.
type ImageObject struct {
	Name             string
	Width            int
	Height           int
	ColorSpace       string
	Components       int
	BitsPerComponent int
	Filter           string
	Encoded          bool
	Data             []byte

	// ICCProfile holds the raw profile bytes when the color space is
	// ICCBased; interpretation belongs to an external color engine.
	ICCProfile []byte
}

// PageImages collects the image XObjects reachable from a page's
// resources. XObjects that fail to resolve or decode are skipped rather
// than failing the page.
func (r *Reader) PageImages(page *pages.Page) ([]ImageObject, error) {
	resources, err := page.Resources()
	if err != nil {
		return nil, err
	}
	xobjObj := resources.Get("XObject")
	if xobjObj == nil {
		return nil, nil
	}
	resolved, err := r.Resolve(xobjObj)
	if err != nil {
		return nil, fmt.Errorf("resolving /XObject: %w", err)
	}
	xobjects, ok := resolved.(core.Dict)
	if !ok {
		return nil, nil
	}

	var images []ImageObject
	for _, name := range xobjects.Keys() {
		obj, err := r.Resolve(xobjects.Get(name))
		if err != nil {
			continue
		}
		stream, ok := obj.(*core.Stream)
		if !ok {
			continue
		}
		if subtype, _ := stream.Dict.GetName("Subtype"); subtype != "Image" {
			continue
		}
		img, err := r.imageFromStream(name, stream)
		if err != nil {
			continue
		}
		images = append(images, *img)
	}
	return images, nil
}

// ImageFromStream builds the codec handoff for a single image XObject
// stream.
func (r *Reader) ImageFromStream(name string, stream *core.Stream) (*ImageObject, error) {
	return r.imageFromStream(name, stream)
}

func (r *Reader) imageFromStream(name string, stream *core.Stream) (*ImageObject, error) {
	width, ok := stream.Dict.GetInt("Width")
	if !ok {
		return nil, fmt.Errorf("image %s has no /Width", name)
	}
	height, ok := stream.Dict.GetInt("Height")
	if !ok {
		return nil, fmt.Errorf("image %s has no /Height", name)
	}

	img := &ImageObject{
		Name:             name,
		Width:            int(width),
		Height:           int(height),
		BitsPerComponent: 8,
		ColorSpace:       "DeviceGray",
		Components:       1,
	}
	if bpc, ok := stream.Dict.GetInt("BitsPerComponent"); ok {
		img.BitsPerComponent = int(bpc)
	}
	if err := r.fillColorSpace(img, stream.Dict.Get("ColorSpace")); err != nil {
		return nil, err
	}

	img.Filter = finalFilter(stream.Dict)
	img.Encoded = stream.IsImageCodec()

	data, err := stream.Decode()
	if err != nil {
		return nil, fmt.Errorf("image %s: %w", name, err)
	}
	img.Data = data
	return img, nil
}

// fillColorSpace resolves /ColorSpace into a name and component count.
// ICCBased spaces additionally surface the raw profile bytes; without a
// profile interpreter the stream's /N picks the matching device space.
func (r *Reader) fillColorSpace(img *ImageObject, csObj core.Object) error {
	if csObj == nil {
		return nil
	}
	resolved, err := r.Resolve(csObj)
	if err != nil {
		return err
	}

	switch cs := resolved.(type) {
	case core.Name:
		img.ColorSpace = string(cs)
		img.Components = deviceComponents(string(cs))
		return nil
	case core.Array:
		if cs.Len() == 0 {
			return fmt.Errorf("empty /ColorSpace array")
		}
		family, ok := cs.GetName(0)
		if !ok {
			return fmt.Errorf("/ColorSpace array must start with a name")
		}
		switch family {
		case "ICCBased":
			return r.fillICCBased(img, cs)
		case "Indexed":
			img.ColorSpace = "Indexed"
			img.Components = 1
			return nil
		default:
			img.ColorSpace = string(family)
			img.Components = deviceComponents(string(family))
			return nil
		}
	default:
		return fmt.Errorf("/ColorSpace is %T", resolved)
	}
}

func (r *Reader) fillICCBased(img *ImageObject, cs core.Array) error {
	if cs.Len() < 2 {
		return fmt.Errorf("/ICCBased needs a profile stream")
	}
	resolved, err := r.Resolve(cs.Get(1))
	if err != nil {
		return fmt.Errorf("resolving ICC stream: %w", err)
	}
	profile, ok := resolved.(*core.Stream)
	if !ok {
		return fmt.Errorf("ICC profile is %T, want stream", resolved)
	}

	n, ok := profile.Dict.GetInt("N")
	if !ok {
		return fmt.Errorf("ICC profile stream has no /N")
	}
	img.Components = int(n)
	switch n {
	case 1:
		img.ColorSpace = "DeviceGray"
	case 3:
		img.ColorSpace = "DeviceRGB"
	case 4:
		img.ColorSpace = "DeviceCMYK"
	default:
		return fmt.Errorf("ICC component count %d", n)
	}

	if data, err := profile.Decode(); err == nil {
		img.ICCProfile = data
	}
	return nil
}

func deviceComponents(name string) int {
	switch name {
	case "DeviceRGB", "CalRGB", "Lab":
		return 3
	case "DeviceCMYK":
		return 4
	default:
		return 1
	}
}

// finalFilter names the last filter in the chain, which decides whether
// an external codec is needed.
func finalFilter(dict core.Dict) string {
	switch f := dict.Get("Filter").(type) {
	case core.Name:
		return string(f)
	case core.Array:
		if f.Len() == 0 {
			return ""
		}
		if name, ok := f.GetName(f.Len() - 1); ok {
			return string(name)
		}
	}
	return ""
}
