package main

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/facebookgo/flagenv"
	"github.com/jrick/logrotate/rotator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shui-community/walletauth"
	"github.com/shui-community/walletauth/data"
	"github.com/shui-community/walletauth/internal"
	libwalletauth "github.com/shui-community/walletauth/lib"
)

var (
	allowedOrigins      = flag.String("allowed-origins", "", "comma separated list of origins allowed to sign in, overrides the config file")
	basePrefix          = flag.String("base-prefix", "", "base prefix (root URL) the application is served under e.g. /api")
	bind                = flag.String("bind", ":8923", "network address to bind HTTP to")
	bindNetwork         = flag.String("bind-network", "tcp", "network family to bind HTTP to, e.g. unix, tcp")
	challengeTTL        = flag.Duration("challenge-ttl", walletauth.DefaultChallengeTTL, "how long a login challenge stays valid, in whole seconds")
	configFname         = flag.String("config-fname", "", "full path to walletauth config file (defaults to a sensible built-in config)")
	cookieDomain        = flag.String("cookie-domain", "", "if set, the domain that the session and CSRF cookies will be valid for")
	cookieDynamicDomain = flag.Bool("cookie-dynamic-domain", false, "if set, automatically set the session cookie Domain value based on the request domain")
	cookieSecure        = flag.Bool("cookie-secure", false, "if true, always set the secure flag on cookies, even for plain HTTP requests")
	csrfTTL             = flag.Duration("csrf-ttl", walletauth.DefaultCSRFTTL, "lifetime of the CSRF cookie")
	extractResources    = flag.String("extract-resources", "", "if set, extract the built-in config to the specified folder")
	healthcheck         = flag.Bool("healthcheck", false, "run a health check against walletauth")
	logFile             = flag.String("log-file", "", "if set, also write logs to this file, rotated at 10 MiB")
	metricsBind         = flag.String("metrics-bind", ":9090", "network address to bind metrics to")
	metricsBindNetwork  = flag.String("metrics-bind-network", "tcp", "network family for the metrics server to bind to")
	sessionSecret       = flag.String("session-secret", "", "secret of at least 32 bytes used to seal challenges and sessions")
	sessionSecretFile   = flag.String("session-secret-file", "", "file name containing value for session-secret")
	sessionTTL          = flag.Duration("session-ttl", walletauth.DefaultSessionTTL, "how long a session cookie stays valid")
	slogLevel           = flag.String("slog-level", "INFO", "logging level (see https://pkg.go.dev/log/slog#hdr-Levels)")
	socketMode          = flag.String("socket-mode", "0770", "socket mode (permissions) for unix domain sockets.")
	storeTimeout        = flag.Duration("store-timeout", walletauth.DefaultStoreTimeout, "upper bound on every call to the anti-replay and rate limit store")
	useRemoteAddress    = flag.Bool("use-remote-address", false, "read the client's IP address from the network request, useful for debugging and running walletauth on bare metal")
	versionFlag         = flag.Bool("version", false, "print walletauth version")
	xffStripPrivate     = flag.Bool("xff-strip-private", true, "if set, strip private addresses from X-Forwarded-For")
)

const (
	logRotateThresholdKB = 10 * 1024
	logRotateMaxRolls    = 3
)

func doHealthCheck() error {
	resp, err := http.Get("http://localhost" + *metricsBind + walletauth.BasePrefix + "/metrics")
	if err != nil {
		return fmt.Errorf("failed to fetch metrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

// parseBindNetFromAddr determine bind network and address based on the given network and address.
func parseBindNetFromAddr(address string) (string, string) {
	defaultScheme := "http://"
	if !strings.Contains(address, "://") {
		if strings.HasPrefix(address, ":") {
			address = defaultScheme + "localhost" + address
		} else {
			address = defaultScheme + address
		}
	}

	bindUri, err := url.Parse(address)
	if err != nil {
		log.Fatal(fmt.Errorf("failed to parse bind URL: %w", err))
	}

	switch bindUri.Scheme {
	case "unix":
		return "unix", bindUri.Path
	case "tcp", "http", "https":
		return "tcp", bindUri.Host
	default:
		log.Fatal(fmt.Errorf("unsupported network scheme %s in address %s", bindUri.Scheme, address))
	}
	return "", address
}

func setupListener(network string, address string) (net.Listener, string) {
	formattedAddress := ""

	if network == "" {
		network, address = parseBindNetFromAddr(address)
	}

	switch network {
	case "unix":
		formattedAddress = "unix:" + address
	case "tcp":
		if strings.HasPrefix(address, ":") { // assume it's just a port e.g. :8923
			formattedAddress = "http://localhost" + address
		} else {
			formattedAddress = "http://" + address
		}
	default:
		formattedAddress = fmt.Sprintf(`(%s) %s`, network, address)
	}

	listener, err := net.Listen(network, address)
	if err != nil {
		log.Fatal(fmt.Errorf("failed to bind to %s: %w", formattedAddress, err))
	}

	// additional permission handling for unix sockets
	if network == "unix" {
		mode, err := strconv.ParseUint(*socketMode, 8, 0)
		if err != nil {
			listener.Close()
			log.Fatal(fmt.Errorf("could not parse socket mode %s: %w", *socketMode, err))
		}

		err = os.Chmod(address, os.FileMode(mode))
		if err != nil {
			err := listener.Close()
			if err != nil {
				log.Printf("failed to close listener: %v", err)
			}
			log.Fatal(fmt.Errorf("could not change socket mode: %w", err))
		}
	}

	return listener, formattedAddress
}

// loadSecret returns the session secret from the flag or the secret file.
// An empty result is allowed; the server reports it on every login.
func loadSecret(value, fname string) ([]byte, error) {
	switch {
	case value != "" && fname != "":
		return nil, errors.New("do not specify both SESSION_SECRET and SESSION_SECRET_FILE")
	case fname != "":
		data, err := os.ReadFile(fname)
		if err != nil {
			return nil, fmt.Errorf("failed to read SESSION_SECRET_FILE %s: %w", fname, err)
		}
		return bytes.TrimSpace(data), nil
	default:
		return []byte(value), nil
	}
}

func splitList(value string) []string {
	var result []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	return result
}

func main() {
	flagenv.Parse()
	flag.Parse()

	if *versionFlag {
		fmt.Println("walletauth", walletauth.Version)
		return
	}

	if *healthcheck {
		if err := doHealthCheck(); err != nil {
			log.Fatal(err)
		}
		return
	}

	var sinks []io.Writer
	if *logFile != "" {
		r, err := rotator.New(*logFile, logRotateThresholdKB, false, logRotateMaxRolls)
		if err != nil {
			log.Fatalf("can't open log file %s: %v", *logFile, err)
		}
		defer r.Close()
		sinks = append(sinks, r)
	}

	internal.InitSlog(*slogLevel, sinks...)

	if *extractResources != "" {
		if err := extractEmbedFS(data.Config, ".", *extractResources); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Extracted embedded config to %s\n", *extractResources)
		return
	}

	if *cookieDomain != "" && *cookieDynamicDomain {
		log.Fatalf("you can't set COOKIE_DOMAIN and COOKIE_DYNAMIC_DOMAIN at the same time")
	}

	if *basePrefix != "" && !strings.HasPrefix(*basePrefix, "/") {
		log.Fatalf("[misconfiguration] base-prefix must start with a slash, eg: /%s", *basePrefix)
	} else if strings.HasSuffix(*basePrefix, "/") {
		log.Fatalf("[misconfiguration] base-prefix must not end with a slash")
	}

	secret, err := loadSecret(*sessionSecret, *sessionSecretFile)
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := libwalletauth.LoadConfigOrDefault(*configFname)
	if err != nil {
		log.Fatalf("can't parse config file: %v", err)
	}

	wg := new(sync.WaitGroup)
	// install signal handler
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := libwalletauth.New(ctx, libwalletauth.Options{
		Config:              cfg,
		Secret:              secret,
		ChallengeTTL:        *challengeTTL,
		SessionTTL:          *sessionTTL,
		CSRFTTL:             *csrfTTL,
		StoreTimeout:        *storeTimeout,
		BasePrefix:          *basePrefix,
		CookieDomain:        *cookieDomain,
		CookieDynamicDomain: *cookieDynamicDomain,
		CookieSecure:        *cookieSecure,
		AllowedOrigins:      splitList(*allowedOrigins),
	})
	if err != nil {
		log.Fatalf("can't construct libwalletauth.Server: %v", err)
	}

	if *metricsBind != "" {
		wg.Add(1)
		go metricsServer(ctx, wg.Done)
	}

	var h http.Handler
	h = s
	h = internal.RemoteXRealIP(*useRemoteAddress, *bindNetwork, h)
	h = internal.XForwardedForToXRealIP(h)
	h = internal.XForwardedForUpdate(*xffStripPrivate, h)
	h = internal.RequestID(h)

	srv := http.Server{
		Handler:           h,
		ErrorLog:          internal.GetFilteredHTTPLogger(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	listener, listenerUrl := setupListener(*bindNetwork, *bind)
	slog.Info(
		"listening",
		"url", listenerUrl,
		"version", walletauth.Version,
		"use-remote-address", *useRemoteAddress,
		"base-prefix", *basePrefix,
		"store", cfg.Store.Backend,
		"challenge-ttl", *challengeTTL,
		"session-ttl", *sessionTTL,
	)

	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(c); err != nil {
			log.Printf("cannot shut down: %v", err)
		}
	}()

	if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	wg.Wait()
}

func metricsServer(ctx context.Context, done func()) {
	defer done()

	mux := http.NewServeMux()
	mux.Handle(walletauth.BasePrefix+"/metrics", promhttp.Handler())

	srv := http.Server{Handler: mux, ErrorLog: internal.GetFilteredHTTPLogger()}
	listener, metricsUrl := setupListener(*metricsBindNetwork, *metricsBind)
	slog.Debug("listening for metrics", "url", metricsUrl)

	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(c); err != nil {
			log.Printf("cannot shut down: %v", err)
		}
	}()

	if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

func extractEmbedFS(fsys embed.FS, root string, destDir string) error {
	return fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		destPath := filepath.Join(destDir, root, relPath)

		if d.IsDir() {
			return os.MkdirAll(destPath, 0o700)
		}

		embeddedData, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}

		return os.WriteFile(destPath, embeddedData, 0o644)
	})
}
