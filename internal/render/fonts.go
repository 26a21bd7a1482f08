package render

import (
	"fmt"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// typeface is the parsed font shared by all renders. Faces built from it
// keep rasterizer state, so each Draw gets its own pair.
type typeface struct {
	// font is nil when only the basic bitmap face is available.
	font   *opentype.Font
	source string

	// err is the first font failure encountered, if any.
	err error
}

// loadTypeface tries the font file, then the embedded Go font, then the
// fixed-size basic face.
func loadTypeface(path string) typeface {
	var firstErr error

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			f, err := parseTypeface(data)
			if err == nil {
				return typeface{font: f, source: "file"}
			}
			firstErr = fmt.Errorf("parsing font: %w", err)
		} else {
			firstErr = fmt.Errorf("reading font: %w", err)
		}
	}

	f, err := parseTypeface(goregular.TTF)
	if err == nil {
		return typeface{font: f, source: "goregular", err: firstErr}
	}
	if firstErr == nil {
		firstErr = err
	}

	return typeface{source: "basic", err: firstErr}
}

// parseTypeface parses data and checks that faces can be built at both sizes.
func parseTypeface(data []byte) (*opentype.Font, error) {
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, err
	}
	for _, size := range []float64{TitleSize, BodySize} {
		face, err := newFace(f, size)
		if err != nil {
			return nil, err
		}
		_ = face.Close()
	}
	return f, nil
}

func newFace(f *opentype.Font, size float64) (font.Face, error) {
	return opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
}

// faces builds a title and body face for one render. The caller closes them.
func (t typeface) faces() (title, body font.Face) {
	if t.font == nil {
		return basicfont.Face7x13, basicfont.Face7x13
	}
	title, err := newFace(t.font, TitleSize)
	if err != nil {
		return basicfont.Face7x13, basicfont.Face7x13
	}
	body, err = newFace(t.font, BodySize)
	if err != nil {
		_ = title.Close()
		return basicfont.Face7x13, basicfont.Face7x13
	}
	return title, body
}
