// Command zonecheck runs overlap checks against a zone snapshot on disk.
//
//	zonecheck -zones zones.yaml -candidate candidate.json [-exclude ID] [-geojson]
//	zonecheck -zones zones.yaml -audit
//
// Zone files hold a list of {id, name, geometry} records, either at the top
// level or under a "zones" key, in YAML or JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/zonewarden/server/internal/geometry"
	"github.com/zonewarden/server/internal/logging"
	"github.com/zonewarden/server/internal/mapview"
	"github.com/zonewarden/server/internal/overlap"
	"gopkg.in/yaml.v3"
)

// errConflicts is returned with -strict when overlaps were found.
var errConflicts = errors.New("overlaps found")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, errConflicts) {
			os.Exit(3)
		}
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "zonecheck: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("zonecheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	zonesPath := fs.String("zones", "", "YAML or JSON file listing existing zones")
	candidatePath := fs.String("candidate", "", "file holding the candidate geometry")
	exclude := fs.String("exclude", "", "zone ID to skip, e.g. the zone being edited")
	asGeoJSON := fs.Bool("geojson", false, "print a GeoJSON FeatureCollection instead of the overlap list")
	audit := fs.Bool("audit", false, "report every overlapping pair among the zones")
	strict := fs.Bool("strict", false, "exit with status 3 when overlaps are found")
	logLevel := fs.String("log-level", "warn", "log level written to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *zonesPath == "" {
		return errors.New("-zones is required")
	}
	if !*audit && *candidatePath == "" {
		return errors.New("-candidate is required unless -audit is set")
	}

	log := logging.New(logging.Config{Level: *logLevel, Format: "text", Output: stderr})
	ctx := context.Background()
	service := overlap.NewService(overlap.WithLogger(log))

	zones, err := loadZones(*zonesPath)
	if err != nil {
		return err
	}

	if *audit {
		result, err := service.Audit(ctx, zones)
		if err != nil {
			return err
		}
		if err := writeOutput(stdout, result); err != nil {
			return err
		}
		if *strict && result.Count > 0 {
			return errConflicts
		}
		return nil
	}

	candidate, err := loadGeometry(*candidatePath)
	if err != nil {
		return err
	}
	result, err := service.Check(ctx, overlap.CheckRequest{
		Geometry:  candidate,
		Zones:     zones,
		ExcludeID: geometry.ZoneID(*exclude),
		Source:    overlap.SourceCLI,
	})
	if err != nil {
		return err
	}

	if *asGeoJSON {
		err = writeOutput(stdout, mapview.Build(result.Candidate, result.Conflicts))
	} else {
		err = writeOutput(stdout, result)
	}
	if err != nil {
		return err
	}
	if *strict && result.Count > 0 {
		return errConflicts
	}
	return nil
}

// loadZones reads a zone list. YAML is decoded generically and re-encoded as
// JSON so geometry classification is the same as on the wire.
func loadZones(path string) ([]geometry.Zone, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	if wrapped, ok := doc.(map[string]interface{}); ok {
		inner, found := wrapped["zones"]
		if !found {
			return nil, fmt.Errorf("%s: expected a list of zones or a \"zones\" key", path)
		}
		doc = inner
	}

	zones := []geometry.Zone{}
	if doc == nil {
		return zones, nil
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := json.Unmarshal(encoded, &zones); err != nil {
		return nil, fmt.Errorf("%s: invalid zone list: %w", path, err)
	}
	return zones, nil
}

// loadGeometry reads a candidate geometry in any accepted encoding. Files
// that are not YAML or JSON are taken as geometry text.
func loadGeometry(path string) (geometry.Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return geometry.Payload{}, fmt.Errorf("read candidate: %w", err)
	}
	if json.Valid(data) {
		return geometry.DecodePayload(data), nil
	}
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return geometry.NewPayload(string(data)), nil
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return geometry.Payload{}, fmt.Errorf("%s: %w", path, err)
	}
	return geometry.DecodePayload(encoded), nil
}

func readDocument(path string) (interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zones: %w", err)
	}
	var doc interface{}
	if json.Valid(data) {
		err = json.Unmarshal(data, &doc)
	} else {
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func writeOutput(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
