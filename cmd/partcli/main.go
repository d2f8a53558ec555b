// Package main is the partcli entry point: a command-line client for a
// multi-tenant 3D-model platform.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/partcli/internal/api"
	"github.com/hyperjump/partcli/internal/assembly"
	"github.com/hyperjump/partcli/internal/cache"
	"github.com/hyperjump/partcli/internal/cli"
	"github.com/hyperjump/partcli/internal/config"
	"github.com/hyperjump/partcli/internal/format"
	"github.com/hyperjump/partcli/internal/models"
	"github.com/hyperjump/partcli/internal/token"
	"github.com/hyperjump/partcli/pkg/utils"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(cli.ExitUsage)
	}
	command := os.Args[1]
	switch command {
	case "token":
		runToken()
	case "invalidate":
		runInvalidate()
	case "folders":
		runFolders()
	case "create-folder":
		runCreateFolder()
	case "delete-folder":
		runDeleteFolder()
	case "models":
		runModels()
	case "model":
		runModel()
	case "model-meta":
		runModelMeta()
	case "properties":
		runProperties()
	case "upload-meta":
		runUploadMeta()
	case "assembly-tree":
		runAssemblyTree()
	case "assembly-bom":
		runAssemblyBOM()
	case "match-model":
		runMatchModel()
	case "match-folder":
		runMatchFolder()
	case "match-report":
		runMatchReport()
	case "label-folder":
		runLabelFolder()
	case "reprocess":
		runReprocess()
	case "delete-model":
		runDeleteModel()
	case "status":
		runStatus()
	case "upload":
		runUpload()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("partcli version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(cli.ExitUsage)
	}
}

func printUsage() {
	fmt.Print(`partcli - client for the 3D-model platform

Usage: partcli <command> [flags]

Session:
  token           Print a valid access token for the tenant
  invalidate      Remove the cached token for the tenant
                  (--cache also purges the tenant's cached model records)

Folders and models:
  folders         List folders
  create-folder   Create a folder (--name)
  delete-folder   Delete folders (--folder, repeatable; names validated first)
  models          List models (--folder, repeatable; --search)
  model           Show one model (--uuid; --meta merges metadata)
  model-meta      List a model's metadata properties (--uuid)
  properties      List tenant-wide metadata keys
  upload-meta     Bulk metadata upsert from CSV (--uuid --input; empty value deletes)
  reprocess       Queue a model for geometric reprocessing (--uuid)
  delete-model    Delete a model (--uuid)
  status          Per-folder model state summary (--folder, repeatable)
  upload          Upload model files (--folder --input glob --units)
  watch           Watch a directory and upload new model files (--folder --dir)

Structure and matching:
  assembly-tree   Resolved assembly tree (--uuid; --format json|tree)
  assembly-bom    Flattened unique part list (--uuid)
  match-model     Part-to-part matches for one model (--uuid --threshold)
  match-folder    Duplicate report across folders (--threshold --folder)
  match-report    Assembly match graph: duplicates CSV, DOT graph, dictionary
                  (--uuid, repeatable; --threshold --duplicates --graph --dictionary)
  label-folder    Propagate a metadata label from best matches (single pass;
                  re-run to converge) (--folder --threshold --property; --apply)

Global flags (per command): --config, --tenant, --format, --pretty, --debug
`)
}

// commonFlags are the flags every data command shares.
type commonFlags struct {
	configPath *string
	tenant     *string
	formatName *string
	pretty     *bool
	debug      *bool
}

func addCommon(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		configPath: fs.String("config", config.DefaultPath(), "config file path"),
		tenant:     fs.String("tenant", "", "tenant alias from the config file"),
		formatName: fs.String("format", "json", "output format (json, csv, table, tree)"),
		pretty:     fs.Bool("pretty", false, "indent JSON output"),
		debug:      fs.Bool("debug", false, "enable debug logging"),
	}
}

// app bundles everything a connected command needs.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	tenant string
	tokens *token.Provider
	client *api.Client
	store  *cache.Store
	out    format.Format
	pretty bool
}

func (a *app) close() {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// setup loads config and constructs the tenant client. Exits on usage and
// configuration errors; connected commands call it first.
func setup(c *commonFlags) *app {
	cfg, err := config.Load(*c.configPath)
	if err != nil {
		fatalf(cli.ExitConfig, "Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || *c.debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf(cli.ExitConfig, "Failed to create logger: %v", err)
	}

	if *c.tenant == "" {
		fatalf(cli.ExitUsage, "--tenant is required")
	}
	creds, err := cfg.Tenant(*c.tenant)
	if err != nil {
		fatalf(cli.ExitConfig, "%v", err)
	}
	if creds.ClientSecret == "" {
		secret, err := promptSecret(*c.tenant)
		if err != nil {
			fatalf(cli.ExitConfig, "Failed to read client secret: %v", err)
		}
		creds.ClientSecret = secret
	}

	outFormat, err := format.Parse(*c.formatName)
	if err != nil {
		fatalf(cli.ExitUsage, "%v", err)
	}

	tokens := token.NewProvider(cfg.IdentityProviderURL, *c.tenant, creds.ClientID, creds.ClientSecret,
		token.WithLogger(logger))
	client := api.NewClient(cfg.BaseURL, *c.tenant, tokens,
		api.WithLogger(logger),
		api.WithPageSize(cfg.PageSize),
		api.WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))

	a := &app{
		cfg:    cfg,
		logger: logger,
		tenant: *c.tenant,
		tokens: tokens,
		client: client,
		out:    outFormat,
		pretty: *c.pretty,
	}
	if cfg.CachePath != "" {
		store, err := cache.Open(cfg.CachePath)
		if err != nil {
			logger.Warn("model cache disabled", zap.Error(err))
		} else {
			a.store = store
		}
	}
	return a
}

// promptSecret reads the client secret from stdin when the config omits it.
// The terminal echoes the input; prefer configuring the secret with 0600
// permissions.
func promptSecret(tenant string) (string, error) {
	fmt.Fprintf(os.Stderr, "Client secret for tenant %s: ", tenant)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func fatalf(code int, msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
	os.Exit(code)
}

func parseUUIDFlag(v string) uuid.UUID {
	if v == "" {
		fatalf(cli.ExitUsage, "--uuid is required")
	}
	id, err := uuid.Parse(v)
	if err != nil {
		fatalf(cli.ExitUsage, "invalid uuid %q: %v", v, err)
	}
	return id
}

func runToken() {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	c := addCommon(fs)
	_ = fs.Parse(os.Args[2:])
	a := setup(c)
	defer a.close()

	ctx, stop := signalContext()
	defer stop()
	tok, err := a.tokens.Token(ctx)
	if err != nil {
		fatalf(cli.ExitConfig, "Failed to obtain token: %v", err)
	}
	fmt.Println(tok)
}

func runInvalidate() {
	fs := flag.NewFlagSet("invalidate", flag.ExitOnError)
	c := addCommon(fs)
	purgeCache := fs.Bool("cache", false, "also purge the tenant's cached model records")
	_ = fs.Parse(os.Args[2:])
	a := setup(c)
	defer a.close()

	if err := a.tokens.Invalidate(); err != nil {
		fatalf(cli.ExitConfig, "Failed to invalidate token: %v", err)
	}
	fmt.Fprintf(os.Stderr, "Token cache removed for tenant %s\n", a.tenant)

	if *purgeCache {
		if a.store == nil {
			fatalf(cli.ExitConfig, "No model cache configured (set cache_path)")
		}
		ctx, stop := signalContext()
		defer stop()
		cached, err := a.store.Count(ctx, a.tenant)
		if err != nil {
			fatalf(cli.ExitData, "Failed to inspect model cache: %v", err)
		}
		purged, err := a.store.Purge(ctx, a.tenant)
		if err != nil {
			fatalf(cli.ExitData, "Failed to purge model cache: %v", err)
		}
		fmt.Fprintf(os.Stderr, "Purged %d of %d cached model records for tenant %s\n", purged, cached, a.tenant)
	}
}

func runFolders() {
	fs := flag.NewFlagSet("folders", flag.ExitOnError)
	c := addCommon(fs)
	_ = fs.Parse(os.Args[2:])
	a := setup(c)
	defer a.close()

	ctx, stop := signalContext()
	defer stop()
	folders, err := a.client.Folders(ctx)
	if err != nil {
		fatalf(cli.ExitData, "Failed to list folders: %v", err)
	}
	folders = folders.Sorted()
	switch a.out {
	case format.CSV:
		err = format.WriteFoldersCSV(os.Stdout, folders)
	case format.Table:
		err = format.WriteFoldersTable(os.Stdout, folders)
	default:
		err = format.WriteJSON(os.Stdout, folders, a.pretty)
	}
	if err != nil {
		fatalf(cli.ExitData, "Failed to write output: %v", err)
	}
}

func runCreateFolder() {
	fs := flag.NewFlagSet("create-folder", flag.ExitOnError)
	c := addCommon(fs)
	name := fs.String("name", "", "folder name")
	_ = fs.Parse(os.Args[2:])
	if *name == "" {
		fatalf(cli.ExitUsage, "--name is required")
	}
	a := setup(c)
	defer a.close()

	ctx, stop := signalContext()
	defer stop()
	folder, err := a.client.CreateFolder(ctx, *name)
	if err != nil {
		fatalf(cli.ExitData, "Failed to create folder: %v", err)
	}
	if err := format.WriteJSON(os.Stdout, folder, a.pretty); err != nil {
		fatalf(cli.ExitData, "Failed to write output: %v", err)
	}
}

func runDeleteFolder() {
	fs := flag.NewFlagSet("delete-folder", flag.ExitOnError)
	c := addCommon(fs)
	var folderFlags cli.StringList
	fs.Var(&folderFlags, "folder", "folder name or ID (repeatable)")
	_ = fs.Parse(os.Args[2:])
	if len(folderFlags) == 0 {
		fatalf(cli.ExitUsage, "--folder is required")
	}
	a := setup(c)
	defer a.close()

	ctx, stop := signalContext()
	defer stop()
	folders, err := a.client.Folders(ctx)
	if err != nil {
		fatalf(cli.ExitData, "Failed to list folders: %v", err)
	}
	ids, err := cli.ResolveFolders(folderFlags, folders)
	if err != nil {
		fatalf(cli.ExitData, "%v", err)
	}
	for _, id := range ids {
		if err := a.client.DeleteFolder(ctx, id); err != nil {
			fatalf(cli.ExitData, "Failed to delete folder %d: %v", id, err)
		}
		fmt.Fprintf(os.Stderr, "Deleted folder %d (%s)\n", id, folders.NameOf(id))
	}
}

// folderScope resolves the repeated --folder flag, or all folders when the
// flag is empty and allowAll is set.
func folderScope(ctx context.Context, a *app, folderFlags []string, allowAll bool) ([]uint32, models.FolderList) {
	folders, err := a.client.Folders(ctx)
	if err != nil {
		fatalf(cli.ExitData, "Failed to list folders: %v", err)
	}
	if len(folderFlags) == 0 {
		if !allowAll {
			fatalf(cli.ExitUsage, "--folder is required")
		}
		ids := make([]uint32, len(folders))
		for i, f := range folders {
			ids[i] = f.ID
		}
		return ids, folders
	}
	ids, err := cli.ResolveFolders(folderFlags, folders)
	if err != nil {
		fatalf(cli.ExitData, "%v", err)
	}
	return ids, folders
}

// attachFolderNames fills FolderName on each model from the folder list.
func attachFolderNames(ms []models.Model, folders models.FolderList) {
	for i := range ms {
		if ms[i].FolderName == "" {
			ms[i].FolderName = folders.NameOf(ms[i].FolderID)
		}
	}
}

func runModels() {
	fs := flag.NewFlagSet("models", flag.ExitOnError)
	c := addCommon(fs)
	var folderFlags cli.StringList
	fs.Var(&folderFlags, "folder", "folder name or ID (repeatable)")
	search := fs.String("search", "", "filter by name substring")
	withMeta := fs.Bool("meta", false, "merge metadata properties into each model")
	_ = fs.Parse(os.Args[2:])
	a := setup(c)
	defer a.close()

	ctx, stop := signalContext()
	defer stop()
	ids, folders := folderScope(ctx, a, folderFlags, true)
	ms, err := a.client.Models(ctx, ids, *search)
	if err != nil {
		fatalf(cli.ExitData, "Failed to list models: %v", err)
	}
	attachFolderNames(ms, folders)
	if *withMeta {
		for i := range ms {
			props, err := a.client.ModelMetadata(ctx, ms[i].UUID)
			if err != nil {
				a.logger.Warn("metadata fetch failed",
					zap.String("model", ms[i].UUID.String()), zap.Error(err))
				continue
			}
			ms[i].Metadata = models.PropertyMap(props)
		}
	}
	writeModels(a, ms)
}

func writeModels(a *app, ms []models.Model) {
	var err error
	switch a.out {
	case format.CSV:
		err = format.WriteModelsCSV(os.Stdout, ms)
	case format.Table:
		err = format.WriteModelsTable(os.Stdout, ms)
	default:
		err = format.WriteJSON(os.Stdout, ms, a.pretty)
	}
	if err != nil {
		fatalf(cli.ExitData, "Failed to write output: %v", err)
	}
}

func runModel() {
	fs := flag.NewFlagSet("model", flag.ExitOnError)
	c := addCommon(fs)
	uuidFlag := fs.String("uuid", "", "model uuid")
	withMeta := fs.Bool("meta", false, "merge metadata properties")
	_ = fs.Parse(os.Args[2:])
	id := parseUUIDFlag(*uuidFlag)
	a := setup(c)
	defer a.close()

	ctx, stop := signalContext()
	defer stop()
	m, err := a.client.Model(ctx, id)
	if err != nil {
		fatalf(cli.ExitData, "Failed to fetch model: %v", err)
	}
	if *withMeta {
		props, err := a.client.ModelMetadata(ctx, id)
		if err != nil {
			fatalf(cli.ExitData, "Failed to fetch metadata: %v", err)
		}
		m.Metadata = models.PropertyMap(props)
	}
	if err := format.WriteJSON(os.Stdout, m, a.pretty); err != nil {
		fatalf(cli.ExitData, "Failed to write output: %v", err)
	}
}

func runModelMeta() {
	fs := flag.NewFlagSet("model-meta", flag.ExitOnError)
	c := addCommon(fs)
	uuidFlag := fs.String("uuid", "", "model uuid")
	_ = fs.Parse(os.Args[2:])
	id := parseUUIDFlag(*uuidFlag)
	a := setup(c)
	defer a.close()

	ctx, stop := signalContext()
	defer stop()
	props, err := a.client.ModelMetadata(ctx, id)
	if err != nil {
		fatalf(cli.ExitData, "Failed to fetch metadata: %v", err)
	}
	sort.Slice(props, func(i, j int) bool { return props[i].Name < props[j].Name })
	if err := format.WriteJSON(os.Stdout, props, a.pretty); err != nil {
		fatalf(cli.ExitData, "Failed to write output: %v", err)
	}
}

func runProperties() {
	fs := flag.NewFlagSet("properties", flag.ExitOnError)
	c := addCommon(fs)
	_ = fs.Parse(os.Args[2:])
	a := setup(c)
	defer a.close()

	ctx, stop := signalContext()
	defer stop()
	keys, err := a.client.MetadataKeys(ctx)
	if err != nil {
		fatalf(cli.ExitData, "Failed to list metadata keys: %v", err)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].ID < keys[j].ID })
	if err := format.WriteJSON(os.Stdout, keys, a.pretty); err != nil {
		fatalf(cli.ExitData, "Failed to write output: %v", err)
	}
}

func runReprocess() {
	fs := flag.NewFlagSet("reprocess", flag.ExitOnError)
	c := addCommon(fs)
	uuidFlag := fs.String("uuid", "", "model uuid")
	_ = fs.Parse(os.Args[2:])
	id := parseUUIDFlag(*uuidFlag)
	a := setup(c)
	defer a.close()

	ctx, stop := signalContext()
	defer stop()
	if err := a.client.ReprocessModel(ctx, id); err != nil {
		fatalf(cli.ExitData, "Failed to queue reprocess: %v", err)
	}
	fmt.Fprintf(os.Stderr, "Model %s queued for reprocessing\n", id)
}

func runDeleteModel() {
	fs := flag.NewFlagSet("delete-model", flag.ExitOnError)
	c := addCommon(fs)
	uuidFlag := fs.String("uuid", "", "model uuid")
	_ = fs.Parse(os.Args[2:])
	id := parseUUIDFlag(*uuidFlag)
	a := setup(c)
	defer a.close()

	ctx, stop := signalContext()
	defer stop()
	if err := a.client.DeleteModel(ctx, id); err != nil {
		fatalf(cli.ExitData, "Failed to delete model: %v", err)
	}
	fmt.Fprintf(os.Stderr, "Deleted model %s\n", id)
}

func runAssemblyTree() {
	fs := flag.NewFlagSet("assembly-tree", flag.ExitOnError)
	c := addCommon(fs)
	uuidFlag := fs.String("uuid", "", "root model uuid")
	noCache := fs.Bool("no-cache", false, "bypass the model cache (cached records can be up to 24h stale)")
	_ = fs.Parse(os.Args[2:])
	id := parseUUIDFlag(*uuidFlag)
	a := setup(c)
	defer a.close()

	ctx, stop := signalContext()
	defer stop()
	root := resolveRoot(ctx, a, id, *noCache)
	var err error
	switch a.out {
	case format.Tree:
		err = format.WriteTree(os.Stdout, root)
	default:
		err = format.WriteJSON(os.Stdout, root, a.pretty)
	}
	if err != nil {
		fatalf(cli.ExitData, "Failed to write output: %v", err)
	}
}

func runAssemblyBOM() {
	fs := flag.NewFlagSet("assembly-bom", flag.ExitOnError)
	c := addCommon(fs)
	uuidFlag := fs.String("uuid", "", "root model uuid")
	noCache := fs.Bool("no-cache", false, "bypass the model cache (cached records can be up to 24h stale)")
	_ = fs.Parse(os.Args[2:])
	id := parseUUIDFlag(*uuidFlag)
	a := setup(c)
	defer a.close()

	ctx, stop := signalContext()
	defer stop()
	root := resolveRoot(ctx, a, id, *noCache)
	bom := assembly.BOM(root)
	var err error
	switch a.out {
	case format.CSV:
		err = format.WriteBOMCSV(os.Stdout, bom)
	default:
		err = format.WriteJSON(os.Stdout, bom, a.pretty)
	}
	if err != nil {
		fatalf(cli.ExitData, "Failed to write output: %v", err)
	}
}

// modelLookup returns the resolver's model source: the caching lookup, or a
// direct pass-through when the cache is bypassed. Cached records can lag the
// remote state by up to the cache max age.
func (a *app) modelLookup(noCache bool) *cache.Lookup {
	store := a.store
	if noCache {
		store = nil
	}
	return cache.NewLookup(a.client, store, a.tenant, a.logger)
}

// resolveRoot resolves one assembly tree, reporting stub warnings on stderr.
func resolveRoot(ctx context.Context, a *app, id uuid.UUID, noCache bool) *assembly.Node {
	folders, err := a.client.Folders(ctx)
	if err != nil {
		fatalf(cli.ExitData, "Failed to list folders: %v", err)
	}
	lookup := a.modelLookup(noCache)
	resolver := assembly.NewResolver(lookup,
		assembly.WithFolders(folders), assembly.WithLogger(a.logger))
	root, err := resolver.Resolve(ctx, id)
	if err != nil {
		fatalf(cli.ExitData, "Failed to resolve assembly: %v", err)
	}
	for _, w := range resolver.Warnings() {
		fmt.Fprintf(os.Stderr, "warning: unresolved reference %s: %s\n", w.ModelID, w.Reason)
	}
	return root
}

func runMatchModel() {
	fs := flag.NewFlagSet("match-model", flag.ExitOnError)
	c := addCommon(fs)
	uuidFlag := fs.String("uuid", "", "model uuid")
	threshold := fs.Float64("threshold", 0.9, "inclusive minimum match score (0..1)")
	_ = fs.Parse(os.Args[2:])
	id := parseUUIDFlag(*uuidFlag)
	checkThreshold(*threshold)
	a := setup(c)
	defer a.close()

	ctx, stop := signalContext()
	defer stop()
	matches, err := a.client.Matches(ctx, id, *threshold)
	if err != nil {
		fatalf(cli.ExitData, "Match query failed: %v", err)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchPercentage > matches[j].MatchPercentage
	})
	switch a.out {
	case format.CSV:
		err = format.WriteMatchesCSV(os.Stdout, matches)
	case format.Table:
		err = format.WriteMatchesTable(os.Stdout, matches)
	default:
		err = format.WriteJSON(os.Stdout, matches, a.pretty)
	}
	if err != nil {
		fatalf(cli.ExitData, "Failed to write output: %v", err)
	}
}

func checkThreshold(t float64) {
	if t < 0 || t > 1 {
		fatalf(cli.ExitUsage, "--threshold must be within [0, 1], got %v", t)
	}
}
