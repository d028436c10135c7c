// Copyright 2025 OneCore Project

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onecore-dev/onecore/pkg/blobstore"
	"github.com/onecore-dev/onecore/pkg/canon"
	"github.com/onecore-dev/onecore/pkg/channel"
	"github.com/onecore-dev/onecore/pkg/config"
	"github.com/onecore-dev/onecore/pkg/connection"
	"github.com/onecore-dev/onecore/pkg/crypto"
	"github.com/onecore-dev/onecore/pkg/kvdb"
	"github.com/onecore-dev/onecore/pkg/objectstore"
	"github.com/onecore-dev/onecore/pkg/relay"
	"github.com/onecore-dev/onecore/pkg/reverseindex"
	"github.com/onecore-dev/onecore/pkg/trust"
)

var metrics = struct {
	objectsStored  *prometheus.CounterVec
	channelAppends prometheus.Counter
	trustResolves  *prometheus.CounterVec
	relayState     prometheus.Gauge
}{
	objectsStored: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onecore_objects_stored_total",
		Help: "Objects written to the object store, by recipe type.",
	}, []string{"type"}),
	channelAppends: promauto.NewCounter(prometheus.CounterOpts{
		Name: "onecore_channel_appends_total",
		Help: "Entries appended to any channel log.",
	}),
	trustResolves: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onecore_trust_resolutions_total",
		Help: "is_trusted(key) resolutions, partitioned by outcome.",
	}, []string{"outcome"}),
	relayState: promauto.NewGauge(prometheus.GaugeOpts{
		Name: "onecore_relay_state",
		Help: "Relay client connection state (0=NotListening, 1=Connecting, 2=Listening).",
	}),
}

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	configPath := flag.String("config", "./onecore.yaml", "path to the node's YAML config file")
	showHelp := flag.Bool("help", false, "show this help message")
	flag.Parse()

	if *showHelp {
		flag.Usage()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	log.Printf("starting onecore node %q (directory=%s)", cfg.Name, cfg.Directory)

	registry := canon.NewRegistry()
	trust.Register(registry)
	channel.Register(registry)
	registry.Register(blobEntryRecipe())
	for _, typ := range cfg.InitialRecipes {
		log.Printf("note: recipe %q named in initialRecipes has no built-in definition; skipping", typ)
	}

	if err := os.MkdirAll(cfg.Directory, 0o700); err != nil {
		log.Fatalf("creating storage directory %s: %v", cfg.Directory, err)
	}

	kv, err := kvdb.Open("onecore", cfg.StorageBackend, cfg.Directory)
	if err != nil {
		log.Fatalf("opening storage backend %s at %s: %v", cfg.StorageBackend, cfg.Directory, err)
	}
	defer kv.Close()

	blobs := blobstore.New(kv)
	objects := objectstore.New(blobs, registry)
	defer objects.Close()

	unsubscribe := objects.Subscribe(func(ev objectstore.Event) {
		metrics.objectsStored.WithLabelValues(ev.Type).Inc()
	})
	defer unsubscribe()

	index, closeIndex, err := openReverseIndex(cfg, blobs)
	if err != nil {
		log.Fatalf("initializing reverse index: %v", err)
	}
	if closeIndex != nil {
		defer closeIndex()
	}
	objects.SetReverseIndex(index)

	identity, err := loadOrGenerateIdentity(cfg)
	if err != nil {
		log.Fatalf("loading node identity: %v", err)
	}
	log.Printf("identity loaded: box public key %s...", hex.EncodeToString(identity.BoxPublic[:])[:16])

	graph := trust.New(objects, index)
	graph.SetRootKeys(identity.RootKeys())
	log.Printf("trust graph seeded with %d root key(s)", len(identity.RootKeys()))

	connRegistry := connection.NewRegistry()
	statusHandlers := connection.NewStatusHandlers(connRegistry)
	objectSync := relay.NewSync(objects, registry, nil)

	var relayClient *relay.Client
	if cfg.CommServerURL != "" {
		relayClient = relay.NewClient(cfg.CommServerURL, connection.Dial).
			WithLogger(log.New(os.Stdout, "[relay] ", log.LstdFlags))
		if err := relayClient.Start(); err != nil {
			log.Printf("relay client failed to start: %v (continuing without a relay connection)", err)
		} else {
			log.Printf("relay client connected to %s", cfg.CommServerURL)
		}
		defer relayClient.Stop()
	} else {
		log.Printf("no commServerUrl configured; running without a relay connection")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth(cfg, relayClient))
	mux.HandleFunc("/api/connections", statusHandlers.HandleConnections)
	mux.HandleFunc("/api/pair", newPairingHandler(connRegistry, objectSync))
	mux.HandleFunc("/api/trust/check", handleTrustCheck(graph))
	mux.HandleFunc("/api/channels/append", handleChannelAppend(objects))
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		if relayClient != nil {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for range ticker.C {
				metrics.relayState.Set(float64(relayClient.State()))
			}
		}
	}()

	go func() {
		log.Printf("listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http server shutdown error: %v", err)
	}
	log.Printf("onecore node stopped")
}

// openReverseIndex selects the reverse-index backend per cfg.DatabaseURL:
// Postgres when configured, otherwise the embedded blobstore-backed
// Maintainer (spec.md §4.5, §6).
func openReverseIndex(cfg *config.Config, blobs *blobstore.Store) (objectstore.ReverseIndexUpdater, func(), error) {
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pg, err := reverseindex.NewPostgresIndex(ctx, reverseindex.PostgresConfig{DatabaseURL: cfg.DatabaseURL})
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres reverse index: %w", err)
		}
		if err := enableConfiguredTypes(pg, cfg); err != nil {
			return nil, nil, err
		}
		return pgAdapter{pg}, func() { pg.Close() }, nil
	}

	m := reverseindex.NewMaintainer(blobs).
		WithLogger(log.New(os.Stdout, "[reverseindex] ", log.LstdFlags))
	if err := enableConfiguredTypes(m, cfg); err != nil {
		return nil, nil, err
	}
	return m, nil, nil
}

// enabler is the subset of Maintainer/PostgresIndex's surface needed to
// apply the configured enable-list; both satisfy it structurally.
type enabler interface {
	Enable(kind reverseindex.Kind, parentType string) error
}

func enableConfiguredTypes(e enabler, cfg *config.Config) error {
	if err := applyEnableList(e, reverseindex.ObjectKind, cfg.InitiallyEnabledReverseMapTypes); err != nil {
		return err
	}
	return applyEnableList(e, reverseindex.IdObjectKind, cfg.InitiallyEnabledReverseMapTypesForIdObjects)
}

func applyEnableList(e enabler, kind reverseindex.Kind, entries []string) error {
	for _, entry := range entries {
		parentType := entry
		if idx := strings.Index(entry, ":"); idx >= 0 {
			parentType = entry[idx+1:]
		}
		if err := e.Enable(kind, parentType); err != nil {
			return fmt.Errorf("enabling reverse index for %s %q: %w", kind, parentType, err)
		}
	}
	return nil
}

// pgAdapter drops PostgresIndex.Referrers' context parameter to satisfy
// objectstore.ReverseIndexUpdater and trust.ReferrerIndex, which predate
// this node gaining a Postgres-backed option and were written against the
// embedded Maintainer's synchronous signature.
type pgAdapter struct {
	pg *reverseindex.PostgresIndex
}

func (a pgAdapter) Update(parent canon.ObjectHash, parentType string, refs []canon.Reference) error {
	return a.pg.Update(parent, parentType, refs)
}

func (a pgAdapter) Referrers(target canon.Hash, kind reverseindex.Kind, parentType string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.pg.Referrers(ctx, target, kind, parentType)
}

// identity holds the node's long-lived keys, loaded from or generated into
// cfg.Directory/identity.hex on first start.
type identity struct {
	BoxPublic  crypto.BoxPublicKey
	BoxSecret  crypto.BoxSecretKey
	SignPublic crypto.SignPublicKey
	SignSecret crypto.SignSecretKey
}

func (id identity) RootKeys() []string {
	return []string{hex.EncodeToString(id.SignPublic[:])}
}

// loadOrGenerateIdentity reads the node's box and sign key pairs from
// cfg.Directory, generating and persisting a fresh pair on first run.
// The file is plaintext hex unless cfg.EncryptStorage is set, in which
// case it is sealed with a key derived from cfg.Secret via scrypt
// (spec.md §4.1, §6).
func loadOrGenerateIdentity(cfg *config.Config) (*identity, error) {
	path := filepath.Join(cfg.Directory, "identity.hex")

	if data, err := os.ReadFile(path); err == nil {
		return decodeIdentity(data, cfg)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading identity file %s: %w", path, err)
	}

	boxPub, boxSec, err := crypto.NewBoxKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating box key pair: %w", err)
	}
	signPub, signSec, err := crypto.NewSignKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating sign key pair: %w", err)
	}
	id := &identity{BoxPublic: boxPub, BoxSecret: boxSec, SignPublic: signPub, SignSecret: signSec}

	if err := persistIdentity(path, id, cfg); err != nil {
		return nil, err
	}
	log.Printf("generated new node identity at %s", path)
	return id, nil
}

func decodeIdentity(data []byte, cfg *config.Config) (*identity, error) {
	plain := data
	if cfg.EncryptStorage {
		decrypted, err := decryptIdentityFile(data, cfg.Secret)
		if err != nil {
			return nil, fmt.Errorf("decrypting identity file: %w", err)
		}
		plain = decrypted
	}

	raw, err := hex.DecodeString(strings.TrimSpace(string(plain)))
	if err != nil {
		return nil, fmt.Errorf("decoding identity hex: %w", err)
	}
	want := len(crypto.BoxPublicKey{}) + len(crypto.BoxSecretKey{}) + len(crypto.SignPublicKey{}) + len(crypto.SignSecretKey{})
	if len(raw) != want {
		return nil, fmt.Errorf("identity file has %d bytes, want %d", len(raw), want)
	}

	var id identity
	offset := 0
	offset += copy(id.BoxPublic[:], raw[offset:])
	offset += copy(id.BoxSecret[:], raw[offset:])
	offset += copy(id.SignPublic[:], raw[offset:])
	copy(id.SignSecret[:], raw[offset:])
	return &id, nil
}

func persistIdentity(path string, id *identity, cfg *config.Config) error {
	raw := make([]byte, 0, len(id.BoxPublic)+len(id.BoxSecret)+len(id.SignPublic)+len(id.SignSecret))
	raw = append(raw, id.BoxPublic[:]...)
	raw = append(raw, id.BoxSecret[:]...)
	raw = append(raw, id.SignPublic[:]...)
	raw = append(raw, id.SignSecret[:]...)
	encoded := []byte(hex.EncodeToString(raw))

	if cfg.EncryptStorage {
		sealed, err := encryptIdentityFile(encoded, cfg.Secret)
		if err != nil {
			return fmt.Errorf("encrypting identity file: %w", err)
		}
		encoded = sealed
	}
	if err := os.WriteFile(path, encoded, 0o600); err != nil {
		return fmt.Errorf("writing identity file %s: %w", path, err)
	}
	return nil
}

const identitySaltSize = 16

func encryptIdentityFile(plain []byte, secret string) ([]byte, error) {
	salt := make([]byte, identitySaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key, err := crypto.DeriveSymmetricFromSecret([]byte(secret), salt)
	if err != nil {
		return nil, err
	}
	var nonce crypto.Nonce
	cipher, err := crypto.SymmetricEncryptEmbedNonce(plain, key, &nonce)
	if err != nil {
		return nil, err
	}
	return append(salt, cipher...), nil
}

func decryptIdentityFile(sealed []byte, secret string) ([]byte, error) {
	if len(sealed) < identitySaltSize {
		return nil, fmt.Errorf("sealed identity file is too short")
	}
	salt, cipher := sealed[:identitySaltSize], sealed[identitySaltSize:]
	key, err := crypto.DeriveSymmetricFromSecret([]byte(secret), salt)
	if err != nil {
		return nil, err
	}
	return crypto.SymmetricDecryptEmbeddedNonce(cipher, key)
}

func handleHealth(cfg *config.Config, relayClient *relay.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := struct {
			Status     string `json:"status"`
			Name       string `json:"name"`
			RelayState string `json:"relayState"`
		}{
			Status:     "ok",
			Name:       cfg.Name,
			RelayState: "disabled",
		}
		if relayClient != nil {
			status.RelayState = relayClient.State().String()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	}
}

// blobEntryRecipe is the default payload type for /api/channels/append,
// wrapping arbitrary bytes when the caller has no richer recipe of its own
// registered for the channel it is writing to.
func blobEntryRecipe() canon.Recipe {
	return canon.Recipe{
		Type: "BlobEntry",
		Fields: []canon.FieldRule{
			{Name: "data", Kind: canon.KindBytes},
		},
	}
}

// handleTrustCheck answers whether a hex-encoded Ed25519-style sign key is
// reachable from the node's root keys (spec.md §4.7).
func handleTrustCheck(graph *trust.Graph) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		if key == "" {
			http.Error(w, `{"error":"missing key query parameter"}`, http.StatusBadRequest)
			return
		}

		trusted, err := graph.IsTrusted(key)
		outcome := "trusted"
		switch {
		case err != nil:
			outcome = "error"
		case !trusted:
			outcome = "untrusted"
		}
		metrics.trustResolves.WithLabelValues(outcome).Inc()

		if err != nil {
			http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			Key     string `json:"key"`
			Trusted bool   `json:"trusted"`
		}{Key: key, Trusted: trusted})
	}
}

type channelAppendRequest struct {
	ID    string `json:"id"`
	Owner string `json:"owner"`
	Data  string `json:"data"`
}

// handleChannelAppend appends a BlobEntry carrying the request's data into
// the named (id, owner) channel log (spec.md §4.6).
func handleChannelAppend(objects *objectstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
			return
		}
		var req channelAppendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf(`{"error":"decoding request: %s"}`, err.Error()), http.StatusBadRequest)
			return
		}
		if req.ID == "" {
			http.Error(w, `{"error":"missing id"}`, http.StatusBadRequest)
			return
		}

		payload := canon.NewObject("BlobEntry", map[string]any{"data": []byte(req.Data)})
		result, err := channel.Open(objects, req.ID, req.Owner).Append(payload, nil)
		if err != nil {
			http.Error(w, fmt.Sprintf(`{"error":"appending to channel: %s"}`, err.Error()), http.StatusInternalServerError)
			return
		}
		metrics.channelAppends.Inc()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			Head      string `json:"head"`
			EntryHash string `json:"entryHash"`
			Timestamp int64  `json:"timestamp"`
		}{
			Head:      hex.EncodeToString(result.Head[:]),
			EntryHash: hex.EncodeToString(result.EntryHash[:]),
			Timestamp: result.Timestamp,
		})
	}
}

// newPairingHandler upgrades an inbound pairing/sync request to a framed
// Connection, tracks its Multiplexer for status reporting, and registers
// the chum object-sync service on it.
func newPairingHandler(registry *connection.Registry, objectSync *relay.Sync) http.HandlerFunc {
	var peerCounter peerIDCounter
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := connection.Accept(w, r)
		if err != nil {
			http.Error(w, fmt.Sprintf(`{"error":"upgrade failed: %s"}`, err.Error()), http.StatusBadRequest)
			return
		}
		peerID := fmt.Sprintf("peer-%d", peerCounter.next())

		mux := connection.NewMultiplexer(conn)
		if err := objectSync.RegisterService(mux); err != nil {
			log.Printf("registering sync service for %s: %v", peerID, err)
		}
		registry.Track(peerID, mux)
		go func() {
			defer registry.Untrack(peerID)
			mux.Run()
		}()
	}
}

type peerIDCounter struct {
	mu sync.Mutex
	n  int
}

func (c *peerIDCounter) next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}
