package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/partcli/internal/assembly"
	"github.com/hyperjump/partcli/internal/cli"
	"github.com/hyperjump/partcli/internal/format"
	"github.com/hyperjump/partcli/internal/matchgraph"
	"github.com/hyperjump/partcli/internal/models"
	"github.com/hyperjump/partcli/internal/propagate"
	"github.com/hyperjump/partcli/internal/watcher"
)

// writeTo opens path via cli.OpenOutput, runs fn, and closes.
func writeTo(path string, fn func(io.Writer) error) error {
	out, err := cli.OpenOutput(path)
	if err != nil {
		return err
	}
	if err := fn(out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// buildGraph runs the match builder and reports skipped queries on stderr.
func buildGraph(ctx context.Context, a *app, roots []*assembly.Node, threshold float64, withMeta bool, folders models.FolderList) *matchgraph.Result {
	builder := matchgraph.NewBuilder(a.client, threshold,
		matchgraph.WithJobs(a.cfg.Jobs),
		matchgraph.WithLogger(a.logger),
		matchgraph.WithFolders(folders),
		matchgraph.WithMetadata(withMeta))
	result, err := builder.Build(ctx, roots)
	if err != nil {
		fatalf(cli.ExitData, "Match graph build failed: %v", err)
	}
	for _, f := range result.Failures {
		fmt.Fprintf(os.Stderr, "warning: match query failed for %s: %v\n", f.ModelID, f.Err)
	}
	return result
}

func runMatchReport() {
	fs := flag.NewFlagSet("match-report", flag.ExitOnError)
	c := addCommon(fs)
	var uuidFlags cli.StringList
	fs.Var(&uuidFlags, "uuid", "root assembly uuid (repeatable)")
	threshold := fs.Float64("threshold", 0.9, "inclusive minimum match score (0..1)")
	duplicates := fs.String("duplicates", "", "duplicate report CSV path (- for stdout)")
	graphPath := fs.String("graph", "", "Graphviz DOT output path")
	dictionary := fs.String("dictionary", "", "index-to-model dictionary JSON path")
	xlsxPath := fs.String("xlsx", "", "duplicate report XLSX path")
	withMeta := fs.Bool("meta", false, "include source model metadata in report rows")
	noCache := fs.Bool("no-cache", false, "bypass the model cache (cached records can be up to 24h stale)")
	_ = fs.Parse(os.Args[2:])
	ids, err := cli.ParseUUIDs(uuidFlags)
	if err != nil {
		fatalf(cli.ExitUsage, "%v", err)
	}
	if len(ids) == 0 {
		fatalf(cli.ExitUsage, "--uuid is required")
	}
	checkThreshold(*threshold)
	a := setup(c)
	defer a.close()

	ctx, stop := signalContext()
	defer stop()
	folders, err := a.client.Folders(ctx)
	if err != nil {
		fatalf(cli.ExitData, "Failed to list folders: %v", err)
	}
	lookup := a.modelLookup(*noCache)
	resolver := assembly.NewResolver(lookup,
		assembly.WithFolders(folders), assembly.WithLogger(a.logger))
	roots := make([]*assembly.Node, 0, len(ids))
	for _, id := range ids {
		root, err := resolver.Resolve(ctx, id)
		if err != nil {
			fatalf(cli.ExitData, "Failed to resolve assembly %s: %v", id, err)
		}
		roots = append(roots, root)
	}
	for _, w := range resolver.Warnings() {
		fmt.Fprintf(os.Stderr, "warning: unresolved reference %s: %s\n", w.ModelID, w.Reason)
	}

	result := buildGraph(ctx, a, roots, *threshold, *withMeta, folders)
	writeMatchOutputs(a, result.Graph, *duplicates, *graphPath, *dictionary, *xlsxPath)
}

// writeMatchOutputs emits the requested exports, all from the same graph
// snapshot. With no explicit destination the duplicate table goes to stdout.
func writeMatchOutputs(a *app, g *matchgraph.Graph, duplicates, graphPath, dictionary, xlsxPath string) {
	rows := g.DuplicateTable()
	wroteAny := false
	if duplicates != "" {
		wroteAny = true
		err := writeTo(duplicates, func(w io.Writer) error {
			if a.out == format.JSON {
				return format.WriteJSON(w, rows, a.pretty)
			}
			return format.WriteDuplicateCSV(w, rows)
		})
		if err != nil {
			fatalf(cli.ExitData, "Failed to write duplicate report: %v", err)
		}
	}
	if graphPath != "" {
		wroteAny = true
		if err := writeTo(graphPath, g.WriteDOT); err != nil {
			fatalf(cli.ExitData, "Failed to write graph: %v", err)
		}
	}
	if dictionary != "" {
		wroteAny = true
		if err := writeTo(dictionary, g.WriteDictionary); err != nil {
			fatalf(cli.ExitData, "Failed to write dictionary: %v", err)
		}
	}
	if xlsxPath != "" {
		wroteAny = true
		err := writeTo(xlsxPath, func(w io.Writer) error {
			return format.WriteDuplicateXLSX(w, rows)
		})
		if err != nil {
			fatalf(cli.ExitData, "Failed to write XLSX report: %v", err)
		}
	}
	if !wroteAny {
		var err error
		if a.out == format.JSON {
			err = format.WriteJSON(os.Stdout, rows, a.pretty)
		} else {
			err = format.WriteDuplicateCSV(os.Stdout, rows)
		}
		if err != nil {
			fatalf(cli.ExitData, "Failed to write duplicate report: %v", err)
		}
	}
}

func runMatchFolder() {
	fs := flag.NewFlagSet("match-folder", flag.ExitOnError)
	c := addCommon(fs)
	var folderFlags cli.StringList
	fs.Var(&folderFlags, "folder", "folder name or ID (repeatable)")
	threshold := fs.Float64("threshold", 0.9, "inclusive minimum match score (0..1)")
	search := fs.String("search", "", "restrict to models whose name contains the term")
	exclusive := fs.Bool("exclusive", false, "keep only matches whose counterpart is inside the scope folders")
	withMeta := fs.Bool("meta", false, "include source model metadata in report rows")
	duplicates := fs.String("duplicates", "", "duplicate report CSV path (- for stdout)")
	graphPath := fs.String("graph", "", "Graphviz DOT output path")
	dictionary := fs.String("dictionary", "", "index-to-model dictionary JSON path")
	xlsxPath := fs.String("xlsx", "", "duplicate report XLSX path")
	_ = fs.Parse(os.Args[2:])
	checkThreshold(*threshold)
	a := setup(c)
	defer a.close()

	ctx, stop := signalContext()
	defer stop()
	ids, folders := folderScope(ctx, a, folderFlags, false)
	ms, err := a.client.Models(ctx, ids, *search)
	if err != nil {
		fatalf(cli.ExitData, "Failed to list models: %v", err)
	}
	attachFolderNames(ms, folders)

	// Each folder model is its own root: the graph covers the folder's parts
	// directly, no tree walk involved.
	roots := make([]*assembly.Node, 0, len(ms))
	skipped := 0
	for _, m := range ms {
		if !m.Ready() {
			skipped++
			continue
		}
		roots = append(roots, &assembly.Node{
			UUID:       m.UUID,
			Name:       m.Name,
			FolderID:   m.FolderID,
			FolderName: m.FolderName,
			IsAssembly: m.IsAssembly,
		})
	}
	if skipped > 0 {
		fmt.Fprintf(os.Stderr, "warning: %d unfinished models skipped\n", skipped)
	}
	if len(roots) == 0 {
		fatalf(cli.ExitData, "No finished models in scope")
	}

	result := buildGraph(ctx, a, roots, *threshold, *withMeta, folders)
	g := result.Graph
	if *exclusive {
		g = pruneOutsideScope(g, folders, ids)
	}
	writeMatchOutputs(a, g, *duplicates, *graphPath, *dictionary, *xlsxPath)
}

// pruneOutsideScope rebuilds the graph keeping only edges whose both
// endpoints sit in the scope folders. Node indices are reassigned in the
// original insertion order so exports stay deterministic.
func pruneOutsideScope(g *matchgraph.Graph, folders models.FolderList, scopeIDs []uint32) *matchgraph.Graph {
	keep := make(map[string]bool, len(scopeIDs))
	for _, id := range scopeIDs {
		if name := folders.NameOf(id); name != "" {
			keep[name] = true
		}
	}
	inScope := make(map[uuid.UUID]bool)
	for _, n := range g.Nodes() {
		if keep[n.FolderName] {
			inScope[n.UUID] = true
		}
	}
	out := matchgraph.NewGraph()
	for _, n := range g.Nodes() {
		if inScope[n.UUID] {
			out.Insert(n.UUID, n.Name, n.FolderName, n.Unresolved)
			if kept, ok := out.Node(n.UUID); ok {
				kept.Metadata = n.Metadata
			}
		}
	}
	for _, e := range g.Edges() {
		if inScope[e.Source] && inScope[e.Target] {
			out.AddEdge(e.Source, e.Target, e.Forward, e.Reverse)
		}
	}
	return out
}

func runLabelFolder() {
	fs := flag.NewFlagSet("label-folder", flag.ExitOnError)
	c := addCommon(fs)
	var folderFlags cli.StringList
	fs.Var(&folderFlags, "folder", "folder name or ID (repeatable)")
	threshold := fs.Float64("threshold", 0.9, "inclusive minimum match score (0..1)")
	property := fs.String("property", "", "metadata property to propagate")
	search := fs.String("search", "", "restrict to models whose name contains the term")
	exclusive := fs.Bool("exclusive", false, "only accept evidence from models inside the scope folders")
	apply := fs.Bool("apply", false, "apply mutations (default is a dry run)")
	all := fs.Bool("all", false, "run over every folder in the tenant")
	jobs := fs.Int("jobs", 0, "concurrent evaluations (defaults from config)")
	_ = fs.Parse(os.Args[2:])
	if *property == "" {
		fatalf(cli.ExitUsage, "--property is required")
	}
	if len(folderFlags) == 0 && !*all {
		fatalf(cli.ExitUsage, "--folder or --all is required")
	}
	checkThreshold(*threshold)
	a := setup(c)
	defer a.close()

	ctx, stop := signalContext()
	defer stop()
	ids, _ := folderScope(ctx, a, folderFlags, *all)

	if *jobs <= 0 {
		*jobs = a.cfg.Jobs
	}
	engine := propagate.NewEngine(a.client, *property, *threshold,
		propagate.WithJobs(*jobs),
		propagate.WithLogger(a.logger),
		propagate.WithExclusive(*exclusive),
		propagate.WithDryRun(!*apply))
	report, err := engine.Propagate(ctx, ids, *search)
	if err != nil && !errors.Is(err, propagate.ErrAllModelsFailed) {
		fatalf(cli.ExitData, "Label propagation failed: %v", err)
	}

	var werr error
	switch a.out {
	case format.CSV:
		werr = format.WritePropagationCSV(os.Stdout, report)
	case format.Table:
		werr = format.WritePropagationTable(os.Stdout, report)
	default:
		werr = format.WriteJSON(os.Stdout, report, a.pretty)
	}
	if werr != nil {
		fatalf(cli.ExitData, "Failed to write report: %v", werr)
	}
	if err != nil {
		fatalf(cli.ExitData, "Label propagation failed: %v", err)
	}
}

// folderStatus is the per-folder line of the status summary.
type folderStatus struct {
	FolderID   uint32         `json:"folderId"`
	FolderName string         `json:"folderName"`
	Total      int            `json:"total"`
	Finished   int            `json:"finished"`
	Processing int            `json:"processing"`
	Failed     int            `json:"failed"`
	Other      int            `json:"other,omitempty"`
	FileTypes  map[string]int `json:"fileTypes,omitempty"`
}

// summarizeStatus aggregates models into per-folder state counts, one line
// per scope folder even when empty, ordered by folder ID.
func summarizeStatus(ms []models.Model, ids []uint32, folders models.FolderList) []folderStatus {
	byFolder := make(map[uint32]*folderStatus)
	for _, id := range ids {
		byFolder[id] = &folderStatus{FolderID: id, FolderName: folders.NameOf(id)}
	}
	for _, m := range ms {
		s, ok := byFolder[m.FolderID]
		if !ok {
			s = &folderStatus{FolderID: m.FolderID, FolderName: folders.NameOf(m.FolderID)}
			byFolder[m.FolderID] = s
		}
		s.Total++
		switch m.State {
		case models.StateFinished:
			s.Finished++
		case models.StateProcessing:
			s.Processing++
		case models.StateFailed:
			s.Failed++
		default:
			s.Other++
		}
		if m.FileType != "" {
			if s.FileTypes == nil {
				s.FileTypes = make(map[string]int)
			}
			s.FileTypes[m.FileType]++
		}
	}
	out := make([]folderStatus, 0, len(byFolder))
	for _, s := range byFolder {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FolderID < out[j].FolderID })
	return out
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	c := addCommon(fs)
	var folderFlags cli.StringList
	fs.Var(&folderFlags, "folder", "folder name or ID (repeatable; default all)")
	_ = fs.Parse(os.Args[2:])
	a := setup(c)
	defer a.close()

	ctx, stop := signalContext()
	defer stop()
	ids, folders := folderScope(ctx, a, folderFlags, true)
	ms, err := a.client.Models(ctx, ids, "")
	if err != nil {
		fatalf(cli.ExitData, "Failed to list models: %v", err)
	}
	statuses := summarizeStatus(ms, ids, folders)

	switch a.out {
	case format.Table, format.CSV:
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tFOLDER\tTOTAL\tFINISHED\tPROCESSING\tFAILED")
		for _, s := range statuses {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\n",
				s.FolderID, s.FolderName, s.Total, s.Finished, s.Processing, s.Failed)
		}
		if err := tw.Flush(); err != nil {
			fatalf(cli.ExitData, "Failed to write output: %v", err)
		}
	default:
		if err := format.WriteJSON(os.Stdout, statuses, a.pretty); err != nil {
			fatalf(cli.ExitData, "Failed to write output: %v", err)
		}
	}
}

func runUpload() {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	c := addCommon(fs)
	folderFlag := fs.String("folder", "", "target folder name or ID")
	input := fs.String("input", "", "file path or glob pattern")
	units := fs.String("units", "", "model units (defaults from config)")
	batch := fs.String("batch", "", "batch identifier attached to the upload")
	_ = fs.Parse(os.Args[2:])
	if *folderFlag == "" || *input == "" {
		fatalf(cli.ExitUsage, "--folder and --input are required")
	}
	a := setup(c)
	defer a.close()

	ctx, stop := signalContext()
	defer stop()
	folders, err := a.client.Folders(ctx)
	if err != nil {
		fatalf(cli.ExitData, "Failed to list folders: %v", err)
	}
	ids, err := cli.ResolveFolders([]string{*folderFlag}, folders)
	if err != nil {
		fatalf(cli.ExitData, "%v", err)
	}
	folderID := ids[0]
	if *units == "" {
		*units = a.cfg.Watch.Units
	}

	paths, err := filepath.Glob(*input)
	if err != nil {
		fatalf(cli.ExitUsage, "invalid glob %q: %v", *input, err)
	}
	if len(paths) == 0 {
		fatalf(cli.ExitData, "No files match %q", *input)
	}
	sort.Strings(paths)

	var uploaded []models.Model
	failed := 0
	for _, path := range paths {
		m, err := a.client.UploadModel(ctx, folderID, path, *units, *batch)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "warning: upload failed for %s: %v\n", path, err)
			continue
		}
		uploaded = append(uploaded, *m)
		fmt.Fprintf(os.Stderr, "Uploaded %s as %s\n", path, m.UUID)
	}
	if failed == len(paths) {
		fatalf(cli.ExitData, "All %d uploads failed", failed)
	}
	writeModels(a, uploaded)
}

func runUploadMeta() {
	fs := flag.NewFlagSet("upload-meta", flag.ExitOnError)
	c := addCommon(fs)
	uuidFlag := fs.String("uuid", "", "model uuid")
	input := fs.String("input", "", "CSV file with NAME,VALUE rows; empty VALUE deletes")
	_ = fs.Parse(os.Args[2:])
	id := parseUUIDFlag(*uuidFlag)
	if *input == "" {
		fatalf(cli.ExitUsage, "--input is required")
	}
	a := setup(c)
	defer a.close()

	f, err := os.Open(*input)
	if err != nil {
		fatalf(cli.ExitData, "Failed to open %s: %v", *input, err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		fatalf(cli.ExitData, "Failed to parse %s: %v", *input, err)
	}
	if len(records) > 0 && records[0][0] == "NAME" {
		records = records[1:]
	}

	ctx, stop := signalContext()
	defer stop()
	set, deleted := 0, 0
	for _, rec := range records {
		if len(rec) < 2 {
			fatalf(cli.ExitData, "Malformed row %v: want NAME,VALUE", rec)
		}
		name, value := rec[0], rec[1]
		if value == "" {
			if err := a.client.DeleteProperty(ctx, id, name); err != nil {
				fatalf(cli.ExitData, "Failed to delete property %q: %v", name, err)
			}
			deleted++
			continue
		}
		if _, err := a.client.SetProperty(ctx, id, name, value); err != nil {
			fatalf(cli.ExitData, "Failed to set property %q: %v", name, err)
		}
		set++
	}
	fmt.Fprintf(os.Stderr, "Applied %d properties, deleted %d on %s\n", set, deleted, id)
}

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	c := addCommon(fs)
	folderFlag := fs.String("folder", "", "target folder name or ID")
	dir := fs.String("dir", "", "directory to watch")
	units := fs.String("units", "", "model units (defaults from config)")
	existing := fs.Bool("existing", false, "upload files already present before watching")
	var extFlags cli.StringList
	fs.Var(&extFlags, "ext", "file extension to upload (repeatable; defaults from config)")
	_ = fs.Parse(os.Args[2:])
	if *folderFlag == "" || *dir == "" {
		fatalf(cli.ExitUsage, "--folder and --dir are required")
	}
	a := setup(c)
	defer a.close()

	ctx, stop := signalContext()
	defer stop()
	folders, err := a.client.Folders(ctx)
	if err != nil {
		fatalf(cli.ExitData, "Failed to list folders: %v", err)
	}
	ids, err := cli.ResolveFolders([]string{*folderFlag}, folders)
	if err != nil {
		fatalf(cli.ExitData, "%v", err)
	}
	folderID := ids[0]
	if *units == "" {
		*units = a.cfg.Watch.Units
	}
	recursive := a.cfg.Watch.RecursiveOrDefault()
	extensions := a.cfg.Watch.Extensions
	if len(extFlags) > 0 {
		extensions = extFlags
	}

	onUpload := func(path string) {
		m, err := a.client.UploadModel(ctx, folderID, path, *units, "")
		if err != nil {
			a.logger.Warn("upload failed", zap.String("path", path), zap.Error(err))
			return
		}
		a.logger.Info("uploaded model",
			zap.String("path", path), zap.String("uuid", m.UUID.String()))
	}
	w := watcher.New(*dir, extensions, recursive, onUpload,
		watcher.WithLogger(a.logger))
	if err := w.Start(ctx); err != nil {
		fatalf(cli.ExitData, "Failed to start watcher: %v", err)
	}
	defer w.Stop()
	if *existing {
		w.UploadExisting()
	}

	a.logger.Info("watching for model files",
		zap.String("dir", *dir), zap.Uint32("folder", folderID))
	<-ctx.Done()
	a.logger.Info("shutting down")
}
