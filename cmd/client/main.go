package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/heppoko-wizard/web-collections/internal/images"
	"github.com/heppoko-wizard/web-collections/internal/keyring"
	"github.com/heppoko-wizard/web-collections/internal/kv"
	"github.com/heppoko-wizard/web-collections/internal/models"
	"github.com/heppoko-wizard/web-collections/internal/store"
	"github.com/heppoko-wizard/web-collections/internal/sync"
)

var (
	version   string
	buildDate string
)

const helpText = `Available commands:
  help                          show this help
  create <name>                 create a collection
  list                          list collections and their items
  note <collection-id> <text>   add a note item
  page <collection-id> <url>    add a webpage item
  rm <collection-id> <item-id>  remove an item
  del <collection-id>           delete a collection
  export                        print the JSON snapshot
  csv                           print the CSV export
  password <pw>                 enable sync with the given password
  backend <name>                select the sync backend (drive|gist|folder)
  token <github-token>          store the GitHub token in the OS keyring
  folder <path>                 select the folder-sync directory
  push | pull                   sync with the selected backend
  exit`

// repl runs the interactive shell loop, accepting commands to manage
// collections and trigger sync.
func repl(ctx context.Context, collections *store.Store, manager *sync.Manager, folder *sync.Folder) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("collections> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "help":
			fmt.Println(helpText)
		case "create":
			if len(args) < 2 {
				fmt.Println("Usage: create <name>")
				continue
			}
			collection, err := collections.CreateCollection(ctx, strings.Join(args[1:], " "))
			if report(err) {
				continue
			}
			fmt.Printf("Created %q (%s)\n", collection.Name, collection.ID)
		case "list":
			all, err := collections.GetAllCollections(ctx)
			if report(err) {
				continue
			}
			for _, c := range all {
				fmt.Printf("%s  %s (%d items)\n", c.ID, c.Name, len(c.Items))
				for _, item := range c.Items {
					fmt.Printf("    %s  [%s] %s\n", item.ID, item.Type, itemLabel(item))
				}
			}
		case "note":
			if len(args) < 3 {
				fmt.Println("Usage: note <collection-id> <text>")
				continue
			}
			item, err := collections.AddItem(ctx, args[1], models.Item{
				Type:    models.ItemNote,
				Content: strings.Join(args[2:], " "),
			})
			if report(err) {
				continue
			}
			fmt.Printf("Added note %s\n", item.ID)
		case "page":
			if len(args) < 3 {
				fmt.Println("Usage: page <collection-id> <url> [title]")
				continue
			}
			draft := models.Item{Type: models.ItemWebpage, URL: args[2]}
			if len(args) > 3 {
				draft.Title = strings.Join(args[3:], " ")
			}
			item, err := collections.AddItem(ctx, args[1], draft)
			if report(err) {
				continue
			}
			fmt.Printf("Added page %s\n", item.ID)
		case "rm":
			if len(args) < 3 {
				fmt.Println("Usage: rm <collection-id> <item-id>")
				continue
			}
			report(collections.RemoveItem(ctx, args[1], args[2]))
		case "del":
			if len(args) < 2 {
				fmt.Println("Usage: del <collection-id>")
				continue
			}
			report(collections.DeleteCollection(ctx, args[1]))
		case "export":
			data, err := collections.ExportJSON(ctx)
			if report(err) {
				continue
			}
			fmt.Println(data)
		case "csv":
			data, err := collections.ExportCSV(ctx)
			if report(err) {
				continue
			}
			fmt.Print(data)
		case "password":
			if len(args) < 2 {
				fmt.Println("Usage: password <pw>")
				continue
			}
			settings, err := collections.GetSettings(ctx)
			if report(err) {
				continue
			}
			settings.SyncEnabled = true
			settings.SyncPassword = args[1]
			report(collections.SaveSettings(ctx, settings))
		case "backend":
			if len(args) < 2 {
				fmt.Println("Usage: backend <name>")
				continue
			}
			settings, err := collections.GetSettings(ctx)
			if report(err) {
				continue
			}
			settings.Backend = args[1]
			report(collections.SaveSettings(ctx, settings))
		case "token":
			if len(args) < 2 {
				fmt.Println("Usage: token <github-token>")
				continue
			}
			report(keyring.SaveToken(args[1]))
		case "folder":
			if len(args) < 2 {
				fmt.Println("Usage: folder <path>")
				continue
			}
			report(folder.SelectDirectory(ctx, args[1]))
		case "push":
			report(manager.Upload(ctx, ""))
		case "pull":
			report(manager.Download(ctx, ""))
		case "exit":
			return
		default:
			fmt.Println("Unknown command; type help")
		}
	}
}

func itemLabel(item models.Item) string {
	switch item.Type {
	case models.ItemWebpage:
		return item.URL
	case models.ItemImage:
		return item.ImageURL
	case models.ItemText, models.ItemNote:
		if len(item.Content) > 60 {
			return item.Content[:60] + "..."
		}
		return item.Content
	}
	return ""
}

// report prints err when non-nil and reports whether it was.
func report(err error) bool {
	if err != nil {
		fmt.Println("error:", err)
		return true
	}
	return false
}

func main() {
	storePath := flag.String("s", "collections.db", "path to the local store file")
	driveClientID := flag.String("drive-client-id", "", "Drive OAuth client id")
	driveClientSecret := flag.String("drive-client-secret", "", "Drive OAuth client secret")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Build version: %s\nBuild date: %s\n", version, buildDate)
		return
	}

	log := zap.NewNop()
	backend, err := kv.OpenBolt(*storePath)
	if err != nil {
		fmt.Println("cannot open store:", err)
		os.Exit(1)
	}
	defer func() { _ = backend.Close() }()

	collections := store.New(backend,
		store.WithImageOptimizer(images.New(nil)),
	)

	progress := func(stage string) { fmt.Println("...", stage) }
	folder := sync.NewFolder(backend, log, sync.WithFolderProgress(progress))
	manager := sync.NewManager(collections, log,
		sync.NewDrive(backend, *driveClientID, *driveClientSecret, log),
		sync.NewGist(backend, nil, log, sync.WithGistProgress(progress)),
		folder,
	)

	fmt.Println("web-collections client; type help for commands")
	repl(context.Background(), collections, manager, folder)
}
