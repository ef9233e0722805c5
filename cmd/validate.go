package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/erosion-api/internal/config"
	"github.com/sells-group/erosion-api/internal/model"
	"github.com/sells-group/erosion-api/internal/region"
	"github.com/sells-group/erosion-api/internal/validate"
)

var (
	validateFile string
	validateBBox []float64
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a polygon file and print its region metadata",
	Long: `Reads a JSON document of the form {"coordinates": [{"longitude": .., "latitude": ..}, ...]}, runs the polygon checks and prints the validation report together with the buffered region properties.

With --bbox, checks a minx,miny,maxx,maxy bounding box instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("bbox") {
			return runValidateBBox(cmd, validateBBox)
		}
		if validateFile == "" {
			return eris.New("one of --file or --bbox is required")
		}
		if err := cfg.Validate("validate"); err != nil {
			return err
		}
		data, err := os.ReadFile(validateFile)
		if err != nil {
			return eris.Wrapf(err, "read %s", validateFile)
		}
		return runValidate(cmd, cfg.Validation, data)
	},
}

type validateOutput struct {
	Validation model.ValidationReport `json:"validation"`
	Region     region.Properties      `json:"region"`
}

func runValidate(cmd *cobra.Command, vc config.ValidationConfig, data []byte) error {
	var doc struct {
		Coordinates []model.Vertex `json:"coordinates"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return eris.Wrap(err, "parse polygon file")
	}

	res, err := validate.New(validate.LimitsFromConfig(vc)).Validate(doc.Coordinates)
	if err != nil {
		return eris.Wrap(err, "polygon rejected")
	}
	reg, err := region.Build(res.Ring, vc.BufferDeg)
	if err != nil {
		return eris.Wrap(err, "build region")
	}

	out, err := json.MarshalIndent(validateOutput{Validation: res.Report, Region: reg.Properties}, "", "  ")
	if err != nil {
		return eris.Wrap(err, "encode report")
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func runValidateBBox(cmd *cobra.Command, bbox []float64) error {
	if err := validate.BBox(bbox); err != nil {
		return eris.Wrap(err, "bbox rejected")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "bbox %v is valid\n", bbox)
	return nil
}

func init() {
	validateCmd.Flags().StringVar(&validateFile, "file", "", "path to a polygon JSON file")
	validateCmd.Flags().Float64SliceVar(&validateBBox, "bbox", nil, "bounding box minx,miny,maxx,maxy")
	validateCmd.MarkFlagsMutuallyExclusive("file", "bbox")
	rootCmd.AddCommand(validateCmd)
}
