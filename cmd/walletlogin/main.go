// Command walletlogin signs in to a walletauth server from the command line
// with a local ed25519 key, the same way a browser wallet would.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/facebookgo/flagenv"
	_ "github.com/joho/godotenv/autoload"
	"sigs.k8s.io/yaml"

	"github.com/shui-community/walletauth/lib/wallet"
)

var (
	server       = flag.String("server", "http://localhost:8923", "base URL of the walletauth server, including any base prefix")
	origin       = flag.String("origin", "http://localhost:3000", "origin to present, must be allowed by the server")
	keyFile      = flag.String("key-file", "", "file holding the hex encoded ed25519 seed")
	genKey       = flag.Bool("gen-key", false, "write a fresh seed to -key-file and print its wallet address")
	outputFormat = flag.String("format", "yaml", "output format: yaml or json")
	timeout      = flag.Duration("timeout", 30*time.Second, "timeout for the whole login")
	helpFlag     = flag.Bool("help", false, "show help")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "%s [options] -key-file <seed.hex>\n\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintln(os.Stderr, "\nExamples:")
		fmt.Fprintln(os.Stderr, "  # Create a throwaway wallet")
		fmt.Fprintln(os.Stderr, "  walletlogin -gen-key -key-file wallet.hex")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "  # Sign in and print the session as JSON")
		fmt.Fprintln(os.Stderr, "  walletlogin -key-file wallet.hex -server http://localhost:8923 -format json")
		os.Exit(2)
	}
}

func keyFromHex(value string) (ed25519.PrivateKey, error) {
	keyBytes, err := hex.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("supplied key is not hex-encoded: %w", err)
	}

	if len(keyBytes) != ed25519.SeedSize {
		return nil, fmt.Errorf("supplied key is not %d bytes long, got %d bytes", ed25519.SeedSize, len(keyBytes))
	}

	return ed25519.NewKeyFromSeed(keyBytes), nil
}

func generateKey(fname string) (wallet.Address, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to generate ed25519 key: %w", err)
	}

	if err := os.WriteFile(fname, []byte(hex.EncodeToString(priv.Seed())+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to write key file: %w", err)
	}

	return wallet.FromPublicKey(pub), nil
}

func render(res *Result, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "yaml":
		return yaml.Marshal(res)
	case "json":
		return json.MarshalIndent(res, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported output format: %s (use yaml or json)", format)
	}
}

func main() {
	flagenv.Parse()
	flag.Parse()

	if len(flag.Args()) > 0 || *helpFlag || *keyFile == "" {
		flag.Usage()
	}

	if *genKey {
		addr, err := generateKey(*keyFile)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(addr)
		return
	}

	seed, err := os.ReadFile(*keyFile)
	if err != nil {
		log.Fatalf("failed to read key file: %v", err)
	}

	priv, err := keyFromHex(string(seed))
	if err != nil {
		log.Fatalf("failed to parse key file %s: %v", *keyFile, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	c, err := NewClient(*server, *origin)
	if err != nil {
		log.Fatal(err)
	}

	res, err := c.Login(ctx, priv)
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}

	output, err := render(res, *outputFormat)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Print(string(output))
}
