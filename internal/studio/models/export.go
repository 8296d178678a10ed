package models

// ============================================================
// Export Options
// ============================================================

const (
	FormatJSON = "json"
	FormatPDF  = "pdf"
	FormatEPS  = "eps"
	FormatPNG  = "png"
	FormatSVG  = "svg"
	FormatZIP  = "zip"
)

const (
	ColorSpaceRGB  = "RGB"
	ColorSpaceCMYK = "CMYK"
)

type ExportOptions struct {
	Format                string  `json:"format" validate:"required,oneof=json pdf eps png svg"`
	DPI                   float64 `json:"dpi" validate:"gte=36,lte=1200"`
	Quality               float64 `json:"quality" validate:"gte=0,lte=1"`
	IncludeMetadata       bool    `json:"includeMetadata"`
	IncludeVersionHistory bool    `json:"includeVersionHistory"`
	Compress              bool    `json:"compress"`
	IncludeBleed          bool    `json:"includeBleed"`
	BleedSize             float64 `json:"bleedSize" validate:"gte=0,lte=20"`
	IncludeCropMarks      bool    `json:"includeCropMarks"`
	ColorSpace            string  `json:"colorSpace" validate:"omitempty,oneof=RGB CMYK"`
}

func DefaultExportOptions(format string) ExportOptions {
	return ExportOptions{
		Format:          format,
		DPI:             300,
		Quality:         1,
		IncludeMetadata: true,
		BleedSize:       3,
		ColorSpace:      ColorSpaceRGB,
	}
}
