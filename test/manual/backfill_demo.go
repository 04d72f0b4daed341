package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hyposync/hyposync/internal/memoizer"
	"github.com/hyposync/hyposync/internal/paginator"
	"github.com/hyposync/hyposync/internal/restclient"
)

// Demonstrates a bounded backfill and cache refresh against the real
// Hypothes.is API, including the lock-folder claim/release cycle.
//
// Usage:
//   1. export HYP_API_TOKEN=<your token>
//   2. export HYP_GROUP=<a group id you belong to>
//   3. go run test/manual/backfill_demo.go

func main() {
	token := os.Getenv("HYP_API_TOKEN")
	if token == "" {
		fmt.Println("ERROR: HYP_API_TOKEN environment variable is required")
		os.Exit(1)
	}
	group := os.Getenv("HYP_GROUP")
	if group == "" {
		fmt.Println("ERROR: HYP_GROUP environment variable is required")
		os.Exit(1)
	}

	client := restclient.NewClient(token)

	search := func(ctx context.Context, p paginator.Params) ([]memoizer.Row, error) {
		result, err := client.Search(ctx, restclient.SearchParams{
			Group:       p.Group,
			User:        p.User,
			Sort:        p.Sort,
			Order:       p.Order,
			Limit:       p.Limit,
			SearchAfter: p.SearchAfter,
		})
		if err != nil {
			return nil, err
		}
		rows := make([]memoizer.Row, len(result.Rows))
		for i, r := range result.Rows {
			rows[i] = map[string]any(r)
		}
		return rows, nil
	}

	cachePath := fmt.Sprintf("./hyposync-demo-%s.json", group)
	mz := memoizer.New(group, "", cachePath, search)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fmt.Printf("Fetching annotations for group %q (cache: %s)\n", group, cachePath)
	rows, err := mz.GetAnnos(ctx)
	if err != nil {
		fmt.Printf("GetAnnos failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d annotations\n", len(rows))

	fmt.Println("Running again to exercise the cache-hit + incremental refresh path...")
	rows2, err := mz.GetAnnos(ctx)
	if err != nil {
		fmt.Printf("second GetAnnos failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Second call returned %d annotations\n", len(rows2))
}
