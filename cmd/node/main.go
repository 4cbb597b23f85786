// Command node starts a tolchain hashgraph node.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tolchain/hashgraph/api"
	"github.com/tolchain/hashgraph/config"
	"github.com/tolchain/hashgraph/crypto/certgen"
	"github.com/tolchain/hashgraph/events"
	"github.com/tolchain/hashgraph/gossip"
	"github.com/tolchain/hashgraph/hashgraph"
	"github.com/tolchain/hashgraph/indexer"
	"github.com/tolchain/hashgraph/member"
	"github.com/tolchain/hashgraph/persistence"
	"github.com/tolchain/hashgraph/storage"
	"github.com/tolchain/hashgraph/wallet"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	keyPath := flag.String("key", "node.key", "path to keystore file")
	genKey := flag.Bool("genkey", false, "generate a new member key and exit")
	genCerts := flag.String("gencerts", "", "generate CA + node TLS certs into the given directory and exit (requires node ID from config)")
	flag.Parse()

	// Read keystore password from environment (not CLI flags — they leak via ps).
	password := os.Getenv("TOL_PASSWORD")
	if password == "" {
		log.Println("WARNING: TOL_PASSWORD not set — keystore will use an empty password")
	}

	// ---- generate key mode ----
	if *genKey {
		w, err := wallet.Generate()
		if err != nil {
			log.Fatal(err)
		}
		if err := wallet.SaveKey(*keyPath, password, w.PrivKey()); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Generated key. Member id: %s\n", w.PubKey())
		fmt.Printf("Saved to: %s\n", *keyPath)
		return
	}

	// ---- generate certs mode ----
	if *genCerts != "" {
		cfgForCerts, err := loadConfig(*cfgPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if err := certgen.GenerateAll(*genCerts, cfgForCerts.NodeID, nil); err != nil {
			log.Fatalf("gencerts: %v", err)
		}
		fmt.Printf("Certificates generated in %s for node %q\n", *genCerts, cfgForCerts.NodeID)
		return
	}

	// ---- load config ----
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- load member key ----
	privKey, err := wallet.LoadKey(*keyPath, password)
	if err != nil {
		log.Fatalf("load key: %v", err)
	}
	if privKey.Public().Hex() != cfg.NodeID {
		log.Fatalf("keystore public key %s does not match config node_id %s", privKey.Public().Hex(), cfg.NodeID)
	}

	// ---- open DB ----
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("mkdir data dir: %v", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir + "/hashgraph")
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	// ---- events ----
	emitter := events.NewEmitter()

	// ---- indexer ----
	idx := indexer.New(db, emitter)

	// ---- membership ----
	registry := member.NewRegistry()
	if err := config.RegisterMembers(cfg, registry, privKey); err != nil {
		log.Fatalf("register members: %v", err)
	}

	// ---- hashgraph engine ----
	hg := hashgraph.New(registry, emitter, hashgraph.Config{CoinRoundModulus: cfg.CoinRoundModulus})

	// ---- restore or bootstrap ----
	if cfg.Dirty {
		log.Println("dirty=true: skipping restore, starting from a fresh hashgraph")
	}
	restored := 0
	if !cfg.Dirty {
		restored, err = persistence.Load(db, hg)
		if err != nil {
			log.Fatalf("restore from storage: %v", err)
		}
	}
	if restored == 0 {
		config.CreditAlloc(cfg, hg)
		genesisID, err := config.CreateLocalGenesisEvent(hg)
		if err != nil {
			log.Fatalf("genesis: %v", err)
		}
		if err := persistence.SaveAll(db, hg); err != nil {
			log.Fatalf("persist genesis: %v", err)
		}
		log.Printf("Genesis event committed: %s", genesisID)
	}
	defer func() {
		if err := persistence.SaveAll(db, hg); err != nil {
			log.Printf("persist snapshot on shutdown: %v", err)
		}
	}()

	// ---- TLS ----
	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		log.Fatalf("tls: %v", err)
	}
	if tlsCfg != nil {
		log.Println("mTLS enabled for gossip transport")
	}

	// ---- gossip ----
	listenAddr := fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.ListenPort)
	node := gossip.NewNode(cfg.NodeID, privKey, listenAddr, tlsCfg, hg, registry)
	if err := node.Start(); err != nil {
		log.Fatalf("gossip start: %v", err)
	}
	defer node.Stop()
	log.Printf("Gossip listening on %s", listenAddr)

	for _, sp := range cfg.SeedPeers {
		host, portStr, splitErr := net.SplitHostPort(sp.Addr)
		if splitErr != nil {
			log.Printf("seed peer %s (%s): %v", sp.ID, sp.Addr, splitErr)
			continue
		}
		var port int
		if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
			log.Printf("seed peer %s (%s): bad port: %v", sp.ID, sp.Addr, err)
			continue
		}
		if err := registry.SetAddress(sp.ID, host, port); err != nil {
			log.Printf("seed peer %s (%s): %v", sp.ID, sp.Addr, err)
		}
	}

	pushInterval := time.Duration(cfg.PushIntervalMS) * time.Millisecond
	if pushInterval <= 0 {
		pushInterval = 500 * time.Millisecond
	}
	pusher := gossip.NewPusher(node, registry, pushInterval)

	// ---- api ----
	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	handler := api.NewHandler(hg, registry, idx)
	rpcServer := api.NewServer(handler, rpcAddr, cfg.RPCAuthToken)
	if err := rpcServer.Start(); err != nil {
		log.Fatalf("rpc start: %v", err)
	}
	defer rpcServer.Stop()
	log.Printf("RPC listening on %s", rpcAddr)
	if cfg.RPCAuthToken != "" {
		log.Println("RPC Bearer token authentication enabled")
	}

	// ---- gossip push loop ----
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pusher.Run(done)
	}()
	log.Printf("Gossiping (member: %s)", privKey.Public().Hex())

	// ---- graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")

	// 1. Stop the push loop first (no new outbound rounds start)
	close(done)
	wg.Wait()

	// 2. Deferred calls run in LIFO: rpcServer.Stop → node.Stop → snapshot → db.Close
	log.Println("Shutdown complete.")
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Config file not found at %s, using defaults.", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}
