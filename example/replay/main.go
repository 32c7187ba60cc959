/*
 * Copyright 2020 Guardtime, Inc.
 *
 * This file is part of the Guardtime client SDK.
 *
 * Licensed under the Apache License, Version 2.0 (the "License").
 * You may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *     http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES, CONDITIONS, OR OTHER LICENSES OF ANY KIND, either
 * express or implied. See the License for the specific language governing
 * permissions and limitations under the License.
 * "Guardtime" and "KSI" are trademarks or registered trademarks of
 * Guardtime, Inc., and no license to trademarks is granted; Guardtime
 * reserves and retains all trademark rights.
 */

// Command replay runs an OSNMA authentication session over a recorded page file and prints the verdicts.
//
// The page file holds one page per line in the format of input.TextSource:
//
//	WN TOW SVID BAND CRC HEX
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/guardtime/goosnma/auth"
	"github.com/guardtime/goosnma/engine"
	"github.com/guardtime/goosnma/errors"
	"github.com/guardtime/goosnma/input"
	"github.com/guardtime/goosnma/log"
	"github.com/guardtime/goosnma/metrics"
	"github.com/guardtime/goosnma/trust"
)

type options struct {
	pubKey     string
	pkid       uint8
	gsc        string
	bundle     string
	merkleRoot string
	checkCRC   bool
	metrics    string
	quiet      bool
	minFields  string
	adkd       []uint

	cfg engine.Config
}

func newCommand() *cobra.Command {
	o := options{cfg: engine.DefaultConfig()}
	cmd := &cobra.Command{
		Use:   "replay <page-file>",
		Short: "Authenticate the Galileo navigation data of a recorded page file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o, args[0])
		},
		SilenceUsage: true,
	}

	f := cmd.Flags()
	f.StringVar(&o.pubKey, "pubkey", "", "PEM or DER file of the OSNMA public key")
	f.Uint8Var(&o.pkid, "pkid", 1, "ID of the public key given with --pubkey or --bundle")
	f.StringVar(&o.gsc, "gsc", "", "GSC XML file with the public keys and the Merkle tree root")
	f.StringVar(&o.bundle, "bundle", "", "PKCS#7 trust bundle")
	f.StringVar(&o.merkleRoot, "merkle-root", "", "hex encoded Merkle tree root")
	f.BoolVar(&o.checkCRC, "check-crc", false, "verify the page CRC instead of trusting the CRC column")
	f.StringVar(&o.metrics, "metrics", "", "address to serve the Prometheus metrics on, e.g. :9090")
	f.BoolVar(&o.quiet, "quiet", false, "print only the TTFAF and the failures")
	f.StringVar(&o.minFields, "min-fields", o.cfg.MinFields.String(), "fields needed per satellite for a fix")

	f.BoolVar(&o.cfg.PartialMACK, "partial", o.cfg.PartialMACK, "extract tags from incomplete subframes")
	f.BoolVar(&o.cfg.CrossSatellite, "cross-satellite", o.cfg.CrossSatellite, "reuse keys verified on other satellites")
	f.BoolVar(&o.cfg.KeyRegen, "key-regen", o.cfg.KeyRegen, "derive lost keys from newer verified keys")
	f.BoolVar(&o.cfg.ReedSolomon, "reed-solomon", o.cfg.ReedSolomon, "recover missing DSM blocks")
	f.BoolVar(&o.cfg.DualFrequency, "dual-frequency", o.cfg.DualFrequency, "collect navigation data from E5b-I")
	f.Int64Var(&o.cfg.PendingExpiry, "expiry", o.cfg.PendingExpiry, "pending tag window in seconds")
	f.IntVar(&o.cfg.MinSatellites, "min-satellites", o.cfg.MinSatellites, "satellites needed for a fix")
	f.Uint32Var(&o.cfg.MaxChainSteps, "max-steps", o.cfg.MaxChainSteps, "hash steps limit per key, 0 for none")
	f.IntVar(&o.cfg.CacheSize, "cache-size", o.cfg.CacheSize, "cross satellite key cache size")
	f.UintSliceVar(&o.adkd, "adkd", nil, "verified tag classes (default 0,4,12)")

	fs := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(fs)
	cmd.PersistentFlags().AddGoFlagSet(fs)
	return cmd
}

func trustStore(o options) (*trust.Store, error) {
	var opts []trust.StoreOpt
	if o.pubKey != "" {
		opts = append(opts, trust.StoreOptPublicKeyFile(o.pkid, o.pubKey))
	}
	if o.gsc != "" {
		opts = append(opts, trust.StoreOptGSCFile(o.gsc))
	}
	if o.bundle != "" {
		opts = append(opts, trust.StoreOptPKCS7File(o.pkid, o.bundle, nil))
	}
	if o.merkleRoot != "" {
		root, err := hex.DecodeString(o.merkleRoot)
		if err != nil {
			return nil, errors.New(errors.OsnmaInvalidArgumentError).SetExtError(err).AppendMessage("Invalid Merkle tree root.")
		}
		opts = append(opts, trust.StoreOptMerkleRoot(root))
	}
	return trust.NewStore(opts...)
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:         addr,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		Handler:      mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			klog.Errorf("Error serving metrics: %v", err)
		}
	}()
}

func printer(quiet bool) engine.ListenerFunc {
	return func(e engine.Event) {
		switch e.Type {
		case engine.EventTTFAF:
			fmt.Printf("TTFAF %s (%ds)\n", e.TTFAF.GST, e.TTFAF.Elapsed)
		case engine.EventVerdict:
			if !quiet || e.Record.Verdict == auth.Failed {
				fmt.Println(e.Record)
			}
		case engine.EventKeyRejected, engine.EventTrust, engine.EventAlert, engine.EventSatelliteRejected:
			fmt.Println(e)
		case engine.EventChainRooted, engine.EventDSM:
			if !quiet {
				fmt.Println(e)
			}
		}
	}
}

func run(ctx context.Context, o options, path string) error {
	kl, err := log.NewKlog()
	if err != nil {
		return err
	}
	log.SetLogger(kl)
	defer klog.Flush()

	if o.cfg.MinFields, err = auth.ParseField(o.minFields); err != nil {
		return err
	}
	if len(o.adkd) > 0 {
		o.cfg.ADKD = o.cfg.ADKD[:0]
		for _, a := range o.adkd {
			o.cfg.ADKD = append(o.cfg.ADKD, uint8(a))
		}
	}
	store, err := trustStore(o)
	if err != nil {
		return err
	}

	opts := []engine.SessionOpt{
		engine.SessionOptConfig(o.cfg),
		engine.SessionOptTrustStore(store),
		engine.SessionOptListener(printer(o.quiet)),
	}
	if o.metrics != "" {
		reg := prometheus.NewRegistry()
		m, err := metrics.New(reg)
		if err != nil {
			return err
		}
		opts = append(opts, engine.SessionOptListener(m))
		serveMetrics(o.metrics, reg)
	}
	s, err := engine.NewSession(opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	f, err := os.Open(path)
	if err != nil {
		return errors.New(errors.OsnmaIoError).SetExtError(err).AppendMessage(fmt.Sprintf("Unable to open file '%s'!", path))
	}
	defer f.Close()
	src, err := input.NewTextSource(f, input.TextSourceOptCheckCRC(o.checkCRC))
	if err != nil {
		return err
	}

	klog.Infof("Replaying %s.", path)
	if err := s.Run(ctx, src); err != nil {
		return err
	}
	if _, ok := s.TTFAF(); !ok {
		fmt.Println("No authenticated fix.")
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newCommand().ExecuteContext(ctx); err != nil {
		klog.Exit(err)
	}
}
