package parser

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ============================================================
// Word document structures
// ============================================================

const (
	BlockText  = "text"
	BlockImage = "image"
)

type TextStyle struct {
	FontSize   float64 // px
	FontFamily string
	Bold       bool
	Italic     bool
	Align      string // left, center, right, justify
	Color      string // #rrggbb
}

type Block struct {
	Kind  string
	Text  string
	Style TextStyle

	Image     []byte
	MediaType string
	Width     float64 // px, 0 when unknown
	Height    float64
}

type WordDocument struct {
	Blocks   []Block
	Warnings []string
}

var ErrNotWordDocument = errors.New("not a word-processor document")

const (
	defaultFontPx = 16.0
	emuPerPixel   = 9525.0
)

// ============================================================
// Parser
// ============================================================

// ParseDOCX converts a .docx package into a flat list of styled blocks.
// Recoverable problems are reported as warnings; a returned error means
// the document could not be read at all.
func ParseDOCX(data []byte) (*WordDocument, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotWordDocument, err)
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	main, ok := files["word/document.xml"]
	if !ok {
		return nil, fmt.Errorf("%w: word/document.xml missing", ErrNotWordDocument)
	}

	w := &docxWalker{
		files:  files,
		styles: map[string]styleDef{},
		rels:   map[string]string{},
		warned: map[string]bool{},
	}
	if f, ok := files["word/styles.xml"]; ok {
		if err := w.loadStyles(f); err != nil {
			w.warn(fmt.Sprintf("styles ignored: %v", err))
		}
	}
	if f, ok := files["word/_rels/document.xml.rels"]; ok {
		if err := w.loadRels(f); err != nil {
			w.warn(fmt.Sprintf("relationships ignored: %v", err))
		}
	}

	rc, err := main.Open()
	if err != nil {
		return nil, fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	if err := w.walk(xml.NewDecoder(rc)); err != nil {
		return nil, fmt.Errorf("parse document.xml: %w", err)
	}

	return &WordDocument{Blocks: w.blocks, Warnings: w.warnings}, nil
}

// ============================================================
// Styles & relationships
// ============================================================

type valAttr struct {
	Val string `xml:"val,attr"`
}

type fontsAttr struct {
	ASCII string `xml:"ascii,attr"`
}

type runPropsXML struct {
	B      *valAttr   `xml:"b"`
	I      *valAttr   `xml:"i"`
	Sz     *valAttr   `xml:"sz"`
	Color  *valAttr   `xml:"color"`
	RFonts *fontsAttr `xml:"rFonts"`
}

type stylesXML struct {
	DocDefaults struct {
		RPrDefault struct {
			RPr runPropsXML `xml:"rPr"`
		} `xml:"rPrDefault"`
	} `xml:"docDefaults"`
	Styles []struct {
		Type    string      `xml:"type,attr"`
		StyleID string      `xml:"styleId,attr"`
		Name    valAttr     `xml:"name"`
		BasedOn *valAttr    `xml:"basedOn"`
		RPr     runPropsXML `xml:"rPr"`
		PPr     struct {
			Jc *valAttr `xml:"jc"`
		} `xml:"pPr"`
	} `xml:"style"`
}

type relsXML struct {
	Relationships []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// styleDef keeps optional values so inheritance can tell "unset" from "off".
type styleDef struct {
	name    string
	basedOn string
	size    *float64
	family  string
	bold    *bool
	italic  *bool
	color   string
	align   string
}

type docxWalker struct {
	files    map[string]*zip.File
	styles   map[string]styleDef
	defaults styleDef
	rels     map[string]string
	blocks   []Block
	warnings []string
	warned   map[string]bool
}

func (w *docxWalker) warn(msg string) {
	if w.warned[msg] {
		return
	}
	w.warned[msg] = true
	w.warnings = append(w.warnings, msg)
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (w *docxWalker) loadStyles(f *zip.File) error {
	data, err := readZipFile(f)
	if err != nil {
		return err
	}
	var doc stylesXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return err
	}

	w.defaults = runProps(doc.DocDefaults.RPrDefault.RPr)
	for _, s := range doc.Styles {
		if s.Type != "" && s.Type != "paragraph" && s.Type != "character" {
			continue
		}
		def := runProps(s.RPr)
		def.name = strings.ToLower(s.Name.Val)
		if s.BasedOn != nil {
			def.basedOn = s.BasedOn.Val
		}
		if s.PPr.Jc != nil {
			def.align = normalizeAlign(s.PPr.Jc.Val)
		}
		w.styles[s.StyleID] = def
	}
	return nil
}

func (w *docxWalker) loadRels(f *zip.File) error {
	data, err := readZipFile(f)
	if err != nil {
		return err
	}
	var doc relsXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return err
	}
	for _, r := range doc.Relationships {
		w.rels[r.ID] = r.Target
	}
	return nil
}

func runProps(p runPropsXML) styleDef {
	var def styleDef
	if p.B != nil {
		v := onOff(p.B.Val)
		def.bold = &v
	}
	if p.I != nil {
		v := onOff(p.I.Val)
		def.italic = &v
	}
	if p.Sz != nil {
		if halfPoints, err := strconv.ParseFloat(p.Sz.Val, 64); err == nil {
			px := halfPoints / 2 * 4 / 3
			def.size = &px
		}
	}
	if p.Color != nil {
		def.color = normalizeColor(p.Color.Val)
	}
	if p.RFonts != nil {
		def.family = p.RFonts.ASCII
	}
	return def
}

// overlay applies the set values of top onto base.
func overlay(base, top styleDef) styleDef {
	if top.size != nil {
		base.size = top.size
	}
	if top.family != "" {
		base.family = top.family
	}
	if top.bold != nil {
		base.bold = top.bold
	}
	if top.italic != nil {
		base.italic = top.italic
	}
	if top.color != "" {
		base.color = top.color
	}
	if top.align != "" {
		base.align = top.align
	}
	return base
}

// resolveStyle flattens a paragraph style with its basedOn chain and heading defaults.
func (w *docxWalker) resolveStyle(id string) styleDef {
	var chain []styleDef
	for depth := 0; id != "" && depth < 8; depth++ {
		def, ok := w.styles[id]
		if !ok {
			break
		}
		chain = append(chain, def)
		id = def.basedOn
	}

	out := w.defaults
	for _, def := range chain {
		if h := headingDefaults(def.name); h.size != nil {
			out = overlay(out, h)
			break
		}
	}
	for i := len(chain) - 1; i >= 0; i-- {
		out = overlay(out, chain[i])
	}
	return out
}

func headingDefaults(name string) styleDef {
	var px float64
	switch name {
	case "title", "heading 1":
		px = 32
	case "heading 2":
		px = 24
	case "heading 3":
		px = 18.72
	case "heading 4":
		px = 16
	default:
		return styleDef{}
	}
	bold := true
	return styleDef{size: &px, bold: &bold}
}

func onOff(val string) bool {
	switch strings.ToLower(val) {
	case "0", "false", "off", "none":
		return false
	}
	return true
}

func normalizeColor(val string) string {
	if val == "" || strings.EqualFold(val, "auto") {
		return ""
	}
	return "#" + strings.ToLower(val)
}

func normalizeAlign(val string) string {
	switch val {
	case "center":
		return "center"
	case "right", "end":
		return "right"
	case "both", "distribute":
		return "justify"
	}
	return "left"
}

// ============================================================
// Body walker
// ============================================================

type runState struct {
	props styleDef
	text  strings.Builder
}

type paragraphState struct {
	styleID string
	props   styleDef
	runs    []*runState
	images  []imageRef
}

type imageRef struct {
	relID         string
	width, height float64
}

func (w *docxWalker) walk(d *xml.Decoder) error {
	var (
		para      *paragraphState
		run       *runState
		inPPr     bool
		inRPr     bool
		tableSeen bool
		extentW   float64
		extentH   float64
	)

	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				if !tableSeen {
					tableSeen = true
					w.warn("tables are flattened into text blocks")
				}
			case "p":
				if isWordML(t.Name) {
					para = &paragraphState{}
				}
			case "pPr":
				inPPr = true
			case "pStyle":
				if para != nil && inPPr {
					para.styleID = attr(t, "val")
				}
			case "jc":
				if para != nil && inPPr {
					para.props.align = normalizeAlign(attr(t, "val"))
				}
			case "r":
				if para != nil && isWordML(t.Name) {
					run = &runState{}
				}
			case "rPr":
				inRPr = true
			case "b", "i", "sz", "color", "rFonts":
				if run != nil && inRPr && !inPPr {
					applyRunProp(&run.props, t)
				}
			case "t", "delText":
				var s string
				if err := d.DecodeElement(&s, &t); err != nil {
					return err
				}
				if run != nil && t.Name.Local == "t" {
					run.text.WriteString(s)
				}
			case "tab":
				if run != nil && !inPPr {
					run.text.WriteString("\t")
				}
			case "br", "cr":
				if run != nil {
					run.text.WriteString("\n")
				}
			case "extent":
				extentW = emuToPx(attr(t, "cx"))
				extentH = emuToPx(attr(t, "cy"))
			case "blip":
				if para != nil {
					para.images = append(para.images, imageRef{relID: attr(t, "embed"), width: extentW, height: extentH})
				}
			case "imagedata":
				if para != nil {
					para.images = append(para.images, imageRef{relID: attr(t, "id")})
				}
			case "object", "oMath", "chart":
				w.warn(fmt.Sprintf("unsupported content skipped: %s", t.Name.Local))
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "pPr":
				inPPr = false
			case "rPr":
				inRPr = false
			case "r":
				if !isWordML(t.Name) {
					break
				}
				if para != nil && run != nil {
					para.runs = append(para.runs, run)
				}
				run = nil
			case "drawing":
				extentW, extentH = 0, 0
			case "p":
				if !isWordML(t.Name) {
					break
				}
				if para != nil {
					w.flushParagraph(para)
				}
				para = nil
			}
		}
	}
}

func applyRunProp(props *styleDef, t xml.StartElement) {
	val, hasVal := attrOK(t, "val")
	switch t.Name.Local {
	case "b":
		v := !hasVal || onOff(val)
		props.bold = &v
	case "i":
		v := !hasVal || onOff(val)
		props.italic = &v
	case "sz":
		if halfPoints, err := strconv.ParseFloat(val, 64); err == nil {
			px := halfPoints / 2 * 4 / 3
			props.size = &px
		}
	case "color":
		props.color = normalizeColor(val)
	case "rFonts":
		if ascii := attr(t, "ascii"); ascii != "" {
			props.family = ascii
		}
	}
}

func (w *docxWalker) flushParagraph(p *paragraphState) {
	base := overlay(w.resolveStyle(p.styleID), p.props)

	var text strings.Builder
	var dominant *runState
	for _, r := range p.runs {
		s := r.text.String()
		if dominant == nil && strings.TrimSpace(s) != "" {
			dominant = r
		}
		text.WriteString(s)
	}

	if content := strings.TrimRight(text.String(), "\n"); strings.TrimSpace(content) != "" {
		props := base
		if dominant != nil {
			props = overlay(base, dominant.props)
		}
		w.blocks = append(w.blocks, Block{Kind: BlockText, Text: content, Style: toTextStyle(props)})
	}

	for _, ref := range p.images {
		if block, ok := w.imageBlock(ref); ok {
			w.blocks = append(w.blocks, block)
		}
	}
}

func (w *docxWalker) imageBlock(ref imageRef) (Block, bool) {
	target, ok := w.rels[ref.relID]
	if !ok {
		w.warn(fmt.Sprintf("image relationship %q not found", ref.relID))
		return Block{}, false
	}

	name := path.Clean(path.Join("word", target))
	if strings.HasPrefix(target, "/") {
		name = strings.TrimPrefix(target, "/")
	}
	f, ok := w.files[name]
	if !ok {
		w.warn(fmt.Sprintf("image %s missing from package", name))
		return Block{}, false
	}

	mediaType := mediaTypeFor(name)
	if mediaType == "" {
		w.warn(fmt.Sprintf("unsupported image format skipped: %s", path.Ext(name)))
		return Block{}, false
	}

	data, err := readZipFile(f)
	if err != nil {
		w.warn(fmt.Sprintf("image %s unreadable: %v", name, err))
		return Block{}, false
	}
	return Block{Kind: BlockImage, Image: data, MediaType: mediaType, Width: ref.width, Height: ref.height}, true
}

func toTextStyle(def styleDef) TextStyle {
	style := TextStyle{
		FontSize:   defaultFontPx,
		FontFamily: def.family,
		Align:      def.align,
		Color:      def.color,
	}
	if def.size != nil && *def.size > 0 {
		style.FontSize = *def.size
	}
	if def.bold != nil {
		style.Bold = *def.bold
	}
	if def.italic != nil {
		style.Italic = *def.italic
	}
	if style.Align == "" {
		style.Align = "left"
	}
	return style
}

func mediaTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	}
	return ""
}

func emuToPx(val string) float64 {
	emu, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0
	}
	return emu / emuPerPixel
}

const wordMLNamespace = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// isWordML reports whether name belongs to the main document vocabulary;
// DrawingML reuses local names such as p and r.
func isWordML(name xml.Name) bool {
	return name.Space == wordMLNamespace || name.Space == "w" || name.Space == ""
}

func attr(t xml.StartElement, local string) string {
	v, _ := attrOK(t, local)
	return v
}

func attrOK(t xml.StartElement, local string) (string, bool) {
	for _, a := range t.Attr {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}
