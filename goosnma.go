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

/*

Package goosnma implements a receiver side engine for the Galileo Open Service Navigation Message Authentication
(OSNMA). It authenticates the navigation data broadcast by the Galileo satellites by verifying the TESLA key chain
and the MAC tags carried in the I/NAV pages.

Note that the following tutorial is incremental, meaning the parameter names used in example code blocks are defined
in previous example blocks.


Logging

The subpackage log defines logging interface type log.Logger, a basic logger implementation for writing lines
to file and a logger forwarding to k8s.io/klog/v2.

By default logging is disabled. In order to enable logging of the engine internals, an implementation to a logger
has to be registered in the log package, e.g. setting default logger:

	// Create an instance of default logger. Write log output to stdout.
	logger, err = log.New(level, nil)
	if err != nil {
		return
	}
	// Register the logger
	log.SetLogger(logger)

or forwarding to klog:
	kl, err := log.NewKlog(log.KlogOptDebugLevel(4))
	if err != nil {
		return
	}
	log.SetLogger(kl)

In order to disable logging, set logger to nil.



Errors

Almost every method of the API returns an error parameter alongside with a value (if applicable). All returned errors
are of type errors.OsnmaError. For troubleshooting, the OsnmaError provides following information:
	error code     - for error verification and recovery logic;
	error message  - a stack of human readable descriptive messages;
	stack trace    - the stack trace of the error registration;
	extended error - an error code, or error from e.g. std library.

The error codes are grouped into classes (see errors.Class). Structural errors (malformed page, MACK or DSM
message) and trust errors (unauthenticated root or public key) never stop a session; they are reported as events
and the offending unit is discarded.

For simplicity reasons, the error handling in this tutorial is mostly omitted.



Trust anchors

The DSM-KROOT messages carrying the TESLA root keys are signed with the Galileo public key. The keys, and the
Merkle tree root authenticating the public key renewals, are held in a trust.Store:
	store, err := trust.NewStore(
		trust.StoreOptGSCFile("OSNMA_MerkleTree.xml"),
		trust.StoreOptPublicKeyFile(1, "OSNMA_PublicKey.pem"),
	)



Running a session

A session consumes the received pages in time order. Pages are provided by an input.Source; the text format read
by input.TextSource holds one page per line:
	f, err := os.Open("pages.txt")
	src, err := input.NewTextSource(f)

The session is configured with engine.Config and reports its progress to the registered listeners:
	cfg := engine.DefaultConfig()
	cfg.PartialMACK = true

	session, err := engine.NewSession(
		engine.SessionOptConfig(cfg),
		engine.SessionOptTrustStore(store),
		engine.SessionOptListener(engine.ListenerFunc(func(e engine.Event) {
			fmt.Println(e)
		})),
	)
	defer session.Close()

	err = session.Run(ctx, src)

Pages can also be pushed one at a time with session.Process().



Results

The verdict of a navigation data field of a satellite is queried with
	v := session.Record(svid, auth.Ephemeris, tagGST)
and the time to first authenticated fix with
	ttfaf, ok := session.TTFAF()

A session restarted with a known root key does not have to wait for the DSM-KROOT:
	session, err := engine.NewSession(
		engine.SessionOptRootKey(kroot),
		engine.SessionOptAnchor(lastVerifiedKey),
	)



Metrics

The subpackage metrics provides a listener exporting the session events as Prometheus metrics:
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	session, err := engine.NewSession(engine.SessionOptListener(m))

*/
package goosnma
