// Command carpenter is a small terminal client over the SDK: log in, read
// the post feed, toggle likes. It exists to exercise the session, gateway
// and feed layers end to end against a real backend.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"runtime/debug"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"

	filecredentialrepo "github.com/happy-carpenter/carpenter-go/credentials/filerepo"
	"github.com/happy-carpenter/carpenter-go/gateway"
	"github.com/happy-carpenter/carpenter-go/internal/config"
	"github.com/happy-carpenter/carpenter-go/optimistic"
	"github.com/happy-carpenter/carpenter-go/session"
	"github.com/happy-carpenter/carpenter-go/social"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %s\n", err)
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	client, sessions, err := buildClient(c)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := sessions.Initialize(ctx); err != nil {
		log.Printf("Stored session could not be restored: %s\n", err)
	}

	if len(os.Args) < 2 {
		return errors.New("usage: carpenter <login|logout|feed|like> [args]")
	}

	switch os.Args[1] {
	case "login":
		return runLogin(ctx, sessions)
	case "logout":
		sessions.Logout(ctx)
		fmt.Println("Logged out.")
		return nil
	case "feed":
		return runFeed(ctx, client)
	case "like":
		return runLike(ctx, client)
	default:
		return errors.Errorf("unknown command %q", os.Args[1])
	}
}

func buildClient(c config.Config) (*social.Client, *session.Manager, error) {
	httpClient := &http.Client{Timeout: c.GetHTTPTimeout()}

	backend, err := gateway.NewAuthBackend(c.GetAPIBaseURL(), httpClient)
	if err != nil {
		return nil, nil, err
	}
	sessions, err := session.NewManager(filecredentialrepo.New(c.GetCredentialsFile()), backend)
	if err != nil {
		return nil, nil, err
	}
	gw, err := gateway.New(c.GetAPIBaseURL(), sessions, httpClient)
	if err != nil {
		return nil, nil, err
	}
	client, err := social.NewClient(gw)
	if err != nil {
		return nil, nil, err
	}
	return client, sessions, nil
}

func runLogin(ctx context.Context, sessions *session.Manager) error {
	if len(os.Args) < 4 {
		return errors.New("usage: carpenter login <username> <password>")
	}
	credential, err := sessions.Login(ctx, os.Args[2], os.Args[3])
	if err != nil {
		return errors.Wrap(err, "login failed")
	}
	fmt.Printf("Logged in as %s.\n", credential.Username)
	return nil
}

func runFeed(ctx context.Context, client *social.Client) error {
	fetcher, err := client.PostFeed(nil)
	if err != nil {
		return err
	}
	if err := fetcher.LoadNext(ctx); err != nil {
		return errors.Wrap(err, "feed fetch failed")
	}
	for _, post := range fetcher.Entries() {
		fmt.Printf("#%-5d %-30s by %-15s likes:%d\n", post.ID, post.Title, post.Owner, post.LikesCount)
	}
	if !fetcher.HasMore() {
		fmt.Println("(end of feed)")
	}
	return nil
}

func runLike(ctx context.Context, client *social.Client) error {
	if len(os.Args) < 3 {
		return errors.New("usage: carpenter like <post-id>")
	}
	var postID int
	if _, err := fmt.Sscanf(os.Args[2], "%d", &postID); err != nil {
		return errors.Wrap(err, "post id must be a number")
	}

	liked := false
	view := optimistic.ViewFunc(func(value bool) { liked = value })
	if err := client.ToggleLike(ctx, postID, liked, view); err != nil {
		return errors.Wrap(err, "like failed")
	}
	fmt.Printf("Post %d liked.\n", postID)
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
