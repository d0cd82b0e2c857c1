// Package gis is the boundary to the external geometry conversion tool.
//
// The rest of the application depends on the Converter interface; the
// concrete implementation shells out to ogr2ogr. Tests substitute an
// in-memory converter.
package gis

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Converter moves geometry data between shapefiles and the spatial database.
type Converter interface {
	// ImportShapefile loads the shapefile found in srcDir into relation,
	// overwriting the relation's previous contents.
	ImportShapefile(ctx context.Context, srcDir, relation string) error

	// ExportQuery runs sql against the database and writes the result as
	// a shapefile set named layer in destDir. It returns the .shp path.
	ExportQuery(ctx context.Context, sql, destDir, layer string) (string, error)
}

// ConversionError reports a failed conversion run. Stderr carries the
// tool's own diagnostics, which are the only useful detail it produces.
type ConversionError struct {
	Op     string
	Stderr string
	Err    error
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("ogr2ogr %s failed", e.Op)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Ogr2ogr invokes the ogr2ogr command-line tool. Each invocation is a
// single request/response run: no retries, no partial success.
type Ogr2ogr struct {
	// Binary is the tool path or name, resolved via PATH when bare.
	Binary string

	// DSN is the PostgreSQL connection string passed as the PG: datasource.
	DSN string

	// TargetSRS is the coordinate system forced in both directions.
	TargetSRS string

	// GeometryColumn is the geometry column name forced on import.
	GeometryColumn string

	// Encoding is the attribute encoding forced in both directions.
	Encoding string

	// Timeout bounds a single run; zero means no deadline beyond ctx.
	Timeout time.Duration
}

// FindShapefile returns the first .shp file in dir, in the lexical order
// os.ReadDir yields. Archives holding more than one shapefile are legal
// but only the first is imported; callers should not depend on which one
// wins beyond that ordering.
func FindShapefile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".shp") {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", &ConversionError{Op: "import", Err: fmt.Errorf("no .shp file found in archive")}
}

// ImportShapefile loads the first shapefile in srcDir into relation with
// overwrite semantics, forcing the configured SRS, geometry column name,
// and encoding.
func (o *Ogr2ogr) ImportShapefile(ctx context.Context, srcDir, relation string) error {
	shp, err := FindShapefile(srcDir)
	if err != nil {
		return err
	}
	args := o.importArgs(shp, relation)
	if _, err := o.run(ctx, "import", args); err != nil {
		return err
	}
	return nil
}

// ExportQuery writes the result of sql as a shapefile set in destDir and
// returns the path of the .shp component.
func (o *Ogr2ogr) ExportQuery(ctx context.Context, sql, destDir, layer string) (string, error) {
	outPath := filepath.Join(destDir, layer+".shp")
	args := o.exportArgs(sql, outPath, layer)
	if _, err := o.run(ctx, "export", args); err != nil {
		return "", err
	}
	return outPath, nil
}

func (o *Ogr2ogr) importArgs(shpPath, relation string) []string {
	return []string{
		"-f", "PostgreSQL",
		"PG:" + o.DSN,
		shpPath,
		"-nln", relation,
		"-overwrite",
		"-lco", "GEOMETRY_NAME=" + o.GeometryColumn,
		"-lco", "ENCODING=" + o.Encoding,
		"-t_srs", o.TargetSRS,
	}
}

func (o *Ogr2ogr) exportArgs(sql, outPath, layer string) []string {
	return []string{
		"-f", "ESRI Shapefile",
		outPath,
		"PG:" + o.DSN,
		"-sql", sql,
		"-nln", layer,
		"-lco", "ENCODING=" + o.Encoding,
		"-t_srs", o.TargetSRS,
	}
}

// run executes one ogr2ogr invocation with captured stderr and an
// optional deadline. A non-zero exit or killed process surfaces as a
// ConversionError carrying whatever the tool wrote to stderr.
func (o *Ogr2ogr) run(ctx context.Context, op string, args []string) (string, error) {
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	binary := o.Binary
	if binary == "" {
		binary = "ogr2ogr"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return "", &ConversionError{Op: op, Stderr: stderr.String(), Err: err}
	}
	return stdout.String(), nil
}
