// Package cli implements the cardgen command, an offline front end to the
// importer, renderer and exporters.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"idcard-studio/internal/common/logger"
	"idcard-studio/internal/common/validation"
	"idcard-studio/internal/studio/export"
	"idcard-studio/internal/studio/fields"
	"idcard-studio/internal/studio/importer"
	"idcard-studio/internal/studio/models"
	"idcard-studio/internal/studio/parser"
	"idcard-studio/internal/studio/render"
)

type options struct {
	fieldsFile   string
	assetDir     string
	assetTimeout time.Duration
	verbose      bool
}

// env is what every subcommand needs, built once flags are parsed.
type env struct {
	registry  *fields.Registry
	renderer  *render.Renderer
	exporter  *export.Exporter
	validator *validation.Validator
	logger    *slog.Logger
}

func (o *options) env(cmd *cobra.Command) (*env, error) {
	log, _, err := logger.New(logger.Config{
		Debug:     o.verbose,
		Component: "cardgen",
		Output:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}
	if !o.verbose {
		log = slog.New(slog.DiscardHandler)
	}

	reg := fields.NewRegistry()
	if o.fieldsFile != "" {
		var custom []fields.DynamicField
		if err := readJSON(o.fieldsFile, &custom); err != nil {
			return nil, err
		}
		for _, f := range custom {
			if err := reg.Register(f); err != nil {
				return nil, fmt.Errorf("field %q: %w", f.ID, err)
			}
		}
	}

	v := validation.New()
	renderer := render.NewRenderer(reg, render.NewAssetLoader(o.assetTimeout, o.assetDir), log)
	return &env{
		registry:  reg,
		renderer:  renderer,
		exporter:  export.NewExporter(renderer, v, log),
		validator: v,
		logger:    log,
	}, nil
}

// NewRootCmd builds the cardgen command tree.
func NewRootCmd(version string) *cobra.Command {
	o := &options{}
	rootCmd := &cobra.Command{
		Use:           "cardgen",
		Short:         "Import, render and export ID card templates",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&o.fieldsFile, "fields", "", "JSON file with custom field definitions")
	rootCmd.PersistentFlags().StringVar(&o.assetDir, "assets", ".", "Directory local image sources are read from; paths outside it are refused")
	rootCmd.PersistentFlags().DurationVar(&o.assetTimeout, "asset-timeout", 10*time.Second, "Timeout for fetching remote images")
	rootCmd.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "Log to stderr")

	rootCmd.AddCommand(newImportCmd(o))
	rootCmd.AddCommand(newRenderCmd(o))
	rootCmd.AddCommand(newExportCmd(o))
	rootCmd.AddCommand(newFieldsCmd(o))
	return rootCmd
}

// ============================================================
// import
// ============================================================

func newImportCmd(o *options) *cobra.Command {
	var (
		name string
		out  string
	)
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Convert a .docx, .psd or image into a template document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := o.env(cmd)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			d := importer.NewDispatcher(parser.PSDParser{}, 0).WithLogger(e.logger)
			res := d.ImportFile(cmd.Context(), filepath.Base(args[0]), data)
			for _, w := range res.Warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
			}
			if !res.Success {
				return fmt.Errorf("import %s: %s", args[0], strings.Join(res.Errors, "; "))
			}

			if name == "" {
				base := filepath.Base(args[0])
				name = strings.TrimSuffix(base, filepath.Ext(base))
			}
			doc := res.Document(uuid.NewString(), name)
			if res.Background != nil && res.Background.Color != "" {
				doc.Background.Color = res.Background.Color
			}

			body, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			if err := writeOutput(cmd, out, body); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "imported %d elements\n", len(doc.Elements))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Template name (defaults to the file name)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (stdout when empty)")
	return cmd
}

// ============================================================
// render
// ============================================================

func newRenderCmd(o *options) *cobra.Command {
	var (
		template    string
		students    string
		format      string
		orientation string
		out         string
		dpi         float64
		workers     int
		bleed       float64
		cropMarks   bool
		useCanvas   bool
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Generate one card per student as a zip of PNGs or a PDF sheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != models.FormatZIP && format != models.FormatPDF {
				return fmt.Errorf("--format must be zip or pdf, got %q", format)
			}
			e, err := o.env(cmd)
			if err != nil {
				return err
			}
			doc, err := readDocument(template)
			if err != nil {
				return err
			}
			var roster []fields.Student
			if err := readJSON(students, &roster); err != nil {
				return err
			}

			s := render.DefaultSettings()
			s.DPI = dpi
			s.UseCanvasSize = useCanvas
			if err := e.validator.Struct(s); err != nil {
				return fmt.Errorf("settings: %s", e.validator.Message(err))
			}

			res, err := e.renderer.GenerateAll(cmd.Context(), doc, roster, s, workers)
			if err != nil {
				return err
			}
			for _, f := range res.Failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed: %s (%s): %s\n", f.StudentName, f.StudentID, f.Message)
			}
			if res.Succeeded == 0 {
				return fmt.Errorf("no cards generated out of %d", res.Requested)
			}

			if orientation == "" {
				orientation = doc.Orientation()
			}
			opts := models.DefaultExportOptions(models.FormatPDF)
			applyMarks(&opts, bleed, cropMarks)

			art, err := e.exporter.ExportCards(cmd.Context(), res.Cards, format, orientation, opts, progressTo(cmd.ErrOrStderr(), o.verbose))
			if err != nil {
				return err
			}
			if out == "" {
				out = art.Filename
			}
			if err := os.WriteFile(out, art.Data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d/%d cards written to %s\n", res.Succeeded, res.Requested, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&template, "template", "t", "", "Template document JSON")
	cmd.Flags().StringVarP(&students, "students", "s", "", "Student roster JSON")
	cmd.Flags().StringVarP(&format, "format", "f", models.FormatZIP, "zip or pdf")
	cmd.Flags().StringVar(&orientation, "orientation", "", "Sheet layout: portrait or landscape (defaults to the template's)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file")
	cmd.Flags().Float64Var(&dpi, "dpi", render.DefaultDPI, "Render resolution")
	cmd.Flags().IntVar(&workers, "workers", 4, "Concurrent renders")
	cmd.Flags().Float64Var(&bleed, "bleed", 0, "PDF bleed in mm")
	cmd.Flags().BoolVar(&cropMarks, "crop-marks", false, "Draw PDF crop marks")
	cmd.Flags().BoolVar(&useCanvas, "canvas-size", false, "Use the template canvas instead of the fixed card size")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("students")
	return cmd
}

// ============================================================
// export
// ============================================================

func newExportCmd(o *options) *cobra.Command {
	var (
		template string
		format   string
		out      string
		dpi      float64
		quality  float64
		cmyk     bool
		compress bool
		bleed    float64
		crop     bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a template document as json, pdf, eps, png or svg",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := o.env(cmd)
			if err != nil {
				return err
			}
			doc, err := readDocument(template)
			if err != nil {
				return err
			}

			opts := models.DefaultExportOptions(format)
			if cmd.Flags().Changed("dpi") {
				opts.DPI = dpi
			}
			if cmd.Flags().Changed("quality") {
				opts.Quality = quality
			}
			if cmyk {
				opts.ColorSpace = models.ColorSpaceCMYK
			}
			opts.Compress = compress
			applyMarks(&opts, bleed, crop)

			art, err := e.exporter.ExportDocument(cmd.Context(), doc, opts, progressTo(cmd.ErrOrStderr(), o.verbose))
			if err != nil {
				return err
			}
			if out == "" {
				out = art.Filename
			}
			if err := os.WriteFile(out, art.Data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s written (%d bytes)\n", out, len(art.Data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&template, "template", "t", "", "Template document JSON")
	cmd.Flags().StringVarP(&format, "format", "f", models.FormatPDF, "json, pdf, eps, png or svg")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (defaults to the template name)")
	cmd.Flags().Float64Var(&dpi, "dpi", render.DefaultDPI, "Raster resolution")
	cmd.Flags().Float64Var(&quality, "quality", 1, "Raster quality 0-1")
	cmd.Flags().BoolVar(&cmyk, "cmyk", false, "Use CMYK colours where the format supports it")
	cmd.Flags().BoolVar(&compress, "compress", false, "Gzip JSON output")
	cmd.Flags().Float64Var(&bleed, "bleed", 0, "PDF bleed in mm")
	cmd.Flags().BoolVar(&crop, "crop-marks", false, "Draw PDF crop marks")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

// ============================================================
// fields
// ============================================================

func newFieldsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "fields",
		Short: "List the placeholder tokens templates can use",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := o.env(cmd)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, f := range e.registry.All() {
				fmt.Fprintf(w, "%-22s %-8s %s\n", f.Placeholder, f.Category, f.Name)
			}
			return nil
		},
	}
}

// ============================================================
// Helpers
// ============================================================

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func readDocument(path string) (*models.SceneDocument, error) {
	var doc models.SceneDocument
	if err := readJSON(path, &doc); err != nil {
		return nil, err
	}
	doc.Normalize()
	return &doc, nil
}

func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// applyMarks turns the --bleed/--crop-marks flags into print options.
func applyMarks(opts *models.ExportOptions, bleed float64, cropMarks bool) {
	if bleed > 0 {
		opts.IncludeBleed = true
		opts.BleedSize = bleed
	}
	opts.IncludeCropMarks = cropMarks
}

func progressTo(w io.Writer, enabled bool) export.ProgressFunc {
	if !enabled {
		return nil
	}
	return func(done, total int, stage string) {
		fmt.Fprintf(w, "[%d/%d] %s\n", done, total, stage)
	}
}
