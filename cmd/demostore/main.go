// Command demostore starts a fake e-commerce storefront to analyze.
// Usage: go run ./cmd/demostore [port]
// Default port: 8900
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/shelfscan/shelfscan/internal/demostore"
)

func main() {
	cfg := demostore.DefaultConfig()

	if len(os.Args) > 1 {
		port, err := strconv.Atoi(os.Args[1])
		if err != nil || port < 1 || port > 65535 {
			log.Fatalf("Invalid port: %s", os.Args[1])
		}
		cfg.Port = port
	}

	store := demostore.New(cfg)

	fmt.Println("===========================================")
	fmt.Println("   Shelfscan Demo Store")
	fmt.Println("===========================================")
	fmt.Println()
	fmt.Printf("A fixture storefront with %d products across %d categories.\n",
		store.TotalProducts(), len(cfg.Categories))
	fmt.Println("Point a Shelfscan analysis run at it to exercise discovery,")
	fmt.Println("pagination handling and run comparison:")
	fmt.Println()
	fmt.Println("  POST /demo/hide  (form field: id) removes a product")
	fmt.Println("  POST /demo/reset restores the full catalog")
	fmt.Println()

	if err := store.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
