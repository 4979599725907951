package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli"

	"ordermatch-pipeline/api"
	"ordermatch-pipeline/broadcaster"
	"ordermatch-pipeline/builder"
	"ordermatch-pipeline/common"
	"ordermatch-pipeline/config"
	"ordermatch-pipeline/eth"
	"ordermatch-pipeline/gasoracle"
	"ordermatch-pipeline/log"
	"ordermatch-pipeline/matchsource"
	"ordermatch-pipeline/matchstore"
	"ordermatch-pipeline/metric"
	"ordermatch-pipeline/orchestrator"
	"ordermatch-pipeline/packer"
	"ordermatch-pipeline/validator"
	"ordermatch-pipeline/verifier"
)

const flagCfg = "cfg"

// chainRuntime is every per-chain component the orchestrator for that chain
// needs kept alive.
type chainRuntime struct {
	chainID      int64
	source       *matchsource.Source
	orchestrator *orchestrator.Orchestrator
}

func parseCli(c *cli.Context) (*config.Node, error) {
	nodeCfgPath := c.String(flagCfg)
	cfg, err := config.LoadNode(nodeCfgPath)
	if err != nil {
		if err := cli.ShowAppHelp(c); err != nil {
			panic(err)
		}
		return nil, common.Wrap(err)
	}
	return cfg, nil
}

func waitSigInt() {
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt)
	<-stopCh
	log.Infow("received interrupt signal, shutting down")
}

func dialChain(ctx context.Context, chainCfg config.Chain) (*eth.Client, error) {
	rawClient, err := ethclient.DialContext(ctx, chainCfg.RPCURL)
	if err != nil {
		return nil, common.Wrap(err)
	}

	ks := keystore.NewKeyStore(chainCfg.KeystorePath, keystore.StandardScryptN, keystore.StandardScryptP)
	account := &accounts.Account{Address: chainCfg.ExchangeAddr()}
	if chainCfg.SignerAddress != "" {
		account.Address = ethCommon.HexToAddress(chainCfg.SignerAddress)
	}
	if ks.HasAddress(account.Address) {
		if err := ks.Unlock(*account, chainCfg.KeystorePassword); err != nil {
			return nil, common.Wrap(err)
		}
	} else {
		log.Warnw("signer address not present in keystore, running read-only", "addr", account.Address.Hex())
	}

	client := eth.NewClient(rawClient, account, ks, eth.ClientConfig{
		ExchangeAddress: chainCfg.ExchangeAddr(),
	})
	return client, nil
}

func buildChainRuntime(ctx context.Context, chainCfg config.Chain, pipelineCfg config.Pipeline,
	store *matchstore.Store, dbURL string) (*chainRuntime, error) {
	client, err := dialChain(ctx, chainCfg)
	if err != nil {
		return nil, common.Wrap(fmt.Errorf("chain %d: %w", chainCfg.ChainID, err))
	}

	listener := matchstore.NewPQListener(dbURL, 10*time.Second, time.Minute)
	backoffBase := time.Duration(pipelineCfg.SubscriptionRetryBaseMillis) * time.Millisecond
	backoffMax := time.Duration(pipelineCfg.SubscriptionRetryMaxMillis) * time.Millisecond
	source := matchsource.New(store, listener, backoffBase, backoffMax)

	orderStore := &unimplementedOrderStore{}
	b := builder.New(orderStore, chainCfg.ExchangeAddr())
	v := verifier.New(client.Exchange, time.Now().Unix)
	chainConfig := common.ChainConfig{
		ChainID:              chainCfg.ChainIDBig(),
		ExchangeAddress:      chainCfg.ExchangeAddr(),
		WrappedNativeAddress: chainCfg.WrappedNativeAddr(),
		MaxGasLimit:          pipelineCfg.MaxGasLimit,
		GasHeadroomNum:       pipelineCfg.GasHeadroomNum,
		GasHeadroomDen:       pipelineCfg.GasHeadroomDen,
		PriceHeadroomNum:     pipelineCfg.PriceHeadroomNum,
		PriceHeadroomDen:     pipelineCfg.PriceHeadroomDen,
		MinBundleSize:        pipelineCfg.MinBundleSize,
	}
	a := validator.New(client.Token, chainConfig, chainCfg.WrappedNativeAddr())
	signerAddr, err := client.Address()
	if err != nil {
		return nil, common.Wrap(err)
	}
	var oracle packer.GasPriceOracle
	if chainCfg.GasOracleURL != "" {
		oracle = gasoracle.New(chainCfg.GasOracleURL, chainCfg.GasOracleAPIKey)
	}
	p := packer.New(client.Exchange, client, oracle, chainCfg.ExchangeAddr(), *signerAddr, chainConfig)
	bc := broadcaster.NewLogging()

	orch := orchestrator.New(orchestrator.Config{
		ChainConfig:   chainConfig,
		Source:        source.Events(),
		Writer:        source,
		Builder:       b,
		Verifier:      v,
		Validator:     a,
		Packer:        p,
		Broadcaster:   bc,
		MinBundleSize: pipelineCfg.MinBundleSize,
	})

	go func() {
		for outcome := range bc.Outcomes() {
			orch.HandleOutcome(outcome)
		}
	}()

	return &chainRuntime{chainID: chainCfg.ChainID, source: source, orchestrator: orch}, nil
}

// unimplementedOrderStore is a placeholder OrderStore: the signed maker
// order persistence layer is an external collaborator out of scope for
// this pipeline, the same way broadcaster.Broadcaster's real submitter is.
type unimplementedOrderStore struct{}

func (unimplementedOrderStore) BatchGet(ids []common.OrderID) (map[common.OrderID]*common.Order, error) {
	return nil, common.Wrap(fmt.Errorf("order store not wired: %d order ids requested", len(ids)))
}

func cmdRun(c *cli.Context) error {
	cfg, err := parseCli(c)
	if err != nil {
		return common.Wrap(fmt.Errorf("error parsing flags and config: %w", err))
	}
	if err := log.Init(cfg.Log.Level, nil); err != nil {
		return common.Wrap(err)
	}
	defer func() { _ = log.Sync() }()

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		return common.Wrap(err)
	}
	defer db.Close()
	if err := matchstore.Migrate(db); err != nil {
		return common.Wrap(err)
	}
	store := matchstore.New(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runtimes := make([]*chainRuntime, 0, len(cfg.Chains))
	ready := make([]<-chan struct{}, 0, len(cfg.Chains))
	for _, chainCfg := range cfg.Chains {
		rt, err := buildChainRuntime(ctx, chainCfg, cfg.Pipeline, store, cfg.Database.URL)
		if err != nil {
			return common.Wrap(fmt.Errorf("chain %d: %w", chainCfg.ChainID, err))
		}
		runtimes = append(runtimes, rt)
		ready = append(ready, rt.source.Start(ctx))
		go rt.orchestrator.Run(ctx)
	}

	registry := prometheus.NewRegistry()
	metric.MustRegisterAll(registry)

	server := gin.New()
	_, err = api.New(api.Config{
		Server:   server,
		Registry: registry,
		Ready: func() bool {
			for _, r := range ready {
				select {
				case <-r:
				default:
					return false
				}
			}
			return true
		},
	})
	if err != nil {
		return common.Wrap(err)
	}
	go func() {
		if err := server.Run(cfg.API.Addr); err != nil {
			log.Errorw("api server stopped", "err", err)
		}
	}()

	log.Infow("ordermatchd started", "chains", len(runtimes), "apiAddr", cfg.API.Addr)
	waitSigInt()
	cancel()
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "ordermatchd"
	app.Version = "v1"

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:  flagCfg,
			Usage: "Node configuration `FILE`",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "Run the order-match transaction pipeline",
			Action: cmdRun,
			Flags:  flags,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Printf("\nError: %v\n", common.Wrap(err))
		os.Exit(1)
	}
}
