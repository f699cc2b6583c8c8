// Threadbox CLI - Command line client for the Threadbox inbox API
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/threadbox/threadbox/clients/go/threadbox"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("THREADBOX_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := threadbox.NewClient(baseURL)
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health()
		exitOnError(err)
		printJSON(resp)

	case "login":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: threadbox login <email> <password>")
			os.Exit(1)
		}
		_, err := client.Login(os.Args[2], os.Args[3])
		exitOnError(err)
		fmt.Println("Logged in")

	case "logout":
		exitOnError(client.Logout())
		fmt.Println("Logged out")

	case "whoami":
		resp, err := client.Me()
		exitOnError(err)
		printJSON(resp)

	case "inbox":
		opts := threadbox.ListThreadsOptions{}
		for _, arg := range os.Args[2:] {
			if arg == "--unread" {
				opts.UnreadOnly = true
			} else {
				opts.Search = arg
			}
		}
		resp, err := client.ListThreads(opts)
		exitOnError(err)
		for _, t := range resp.Data {
			marker := " "
			if t.UnreadCount > 0 {
				marker = "*"
			}
			preview := ""
			if t.LatestMessage != nil {
				preview = t.LatestMessage.Body
				if len(preview) > 50 {
					preview = preview[:50] + "..."
				}
			}
			fmt.Printf("%s %s  %-30s  %s\n", marker, t.ID, t.Subject, preview)
		}
		fmt.Printf("page %d/%d (%d threads)\n", resp.Meta.CurrentPage, resp.Meta.LastPage, resp.Meta.Total)

	case "read":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: threadbox read <thread_id>")
			os.Exit(1)
		}
		resp, err := client.GetThread(os.Args[2], 1)
		exitOnError(err)
		fmt.Printf("%s\n\n", resp.Subject)
		for _, msg := range resp.Messages.Data {
			fmt.Printf("[%s] %s: %s\n", msg.CreatedAt, msg.User.Name, msg.Body)
		}

	case "new":
		if len(os.Args) < 5 {
			fmt.Fprintln(os.Stderr, "Usage: threadbox new <subject> <body> <participant_id,...>")
			os.Exit(1)
		}
		participants := strings.Split(os.Args[4], ",")
		resp, err := client.CreateThread(os.Args[2], os.Args[3], participants)
		exitOnError(err)
		fmt.Printf("Created thread: %s\n", resp.ID)

	case "reply":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: threadbox reply <thread_id> <body>")
			os.Exit(1)
		}
		resp, err := client.PostMessage(os.Args[2], os.Args[3])
		exitOnError(err)
		fmt.Printf("Posted: %s\n", resp.ID)

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`Threadbox CLI - inbox messaging client

Usage: threadbox <command> [options]

Commands:
  login <email> <password>           Log in and store the session
  logout                             Revoke the stored session
  whoami                             Show the authenticated user
  inbox [--unread] [search]          List threads
  read <thread_id>                   Read a thread (marks it read)
  new <subject> <body> <ids>         Start a thread (comma-separated participant ids)
  reply <thread_id> <body>           Reply to a thread
  health                             Check server health

Environment:
  THREADBOX_URL     Server base URL (default http://localhost:8080)
  THREADBOX_CONFIG  Session directory (default ~/.threadbox)`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
