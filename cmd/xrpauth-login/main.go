// Command xrpauth-login signs in to an xrpauth server from a terminal and
// keeps the session credential for later runs.
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	log "github.com/inconshreveable/log15"
	"github.com/layer-3/xrpauth/client"
	"github.com/layer-3/xrpauth/core"
	"github.com/layer-3/xrpauth/flow"
	"github.com/skip2/go-qrcode"
	"gopkg.in/urfave/cli.v1"
)

func main() {
	app := cli.NewApp()
	app.Name = "xrpauth-login"
	app.Usage = "Sign in to an xrpauth server with an XRPL wallet"
	app.Version = "0.1.0"

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "server",
			Usage:  "Auth API base URL",
			Value:  "http://localhost:9000/api/auth",
			EnvVar: "XRPAUTH_SERVER",
		},
		cli.StringFlag{
			Name:  "provider",
			Usage: "Wallet provider: xumm, gem or crossmark",
			Value: "xumm",
		},
		cli.StringFlag{
			Name:  "public-key",
			Usage: "Hex public key claimed for gem and crossmark",
		},
		cli.StringFlag{
			Name:  "address",
			Usage: "Classic address claimed for gem and crossmark",
		},
		cli.StringFlag{
			Name:  "credential",
			Usage: "Where the session credential is kept",
			Value: defaultCredentialPath(),
		},
		cli.DurationFlag{
			Name:  "timeout",
			Usage: "How long to wait for an out-of-band signature",
			Value: 5 * time.Minute,
		},
		cli.BoolFlag{
			Name:  "logout",
			Usage: "Discard the stored credential and exit",
		},
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "Log flow transitions",
		},
	}
	app.Action = login

	if err := app.Run(os.Args); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func login(c *cli.Context) error {
	logger := log.New("module", "login")
	if c.Bool("verbose") {
		logger.SetHandler(log.LvlFilterHandler(log.LvlDebug, log.StreamHandler(os.Stderr, log.TerminalFormat())))
	} else {
		logger.SetHandler(log.DiscardHandler())
	}

	cred := credentialFile{path: c.String("credential")}
	if c.Bool("logout") {
		if err := cred.Remove(); err != nil {
			return err
		}
		fmt.Println("Signed out")
		return nil
	}

	provider, err := core.ParseProvider(c.String("provider"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f := flow.New(client.New(c.String("server")),
		flow.WithLogger(logger),
		flow.WithChannelTimeout(c.Duration("timeout")),
	)
	defer f.Disconnect()

	green := color.New(color.FgGreen)

	token, err := cred.Load()
	if err != nil {
		return err
	}
	if err := f.Restore(ctx, token); err != nil {
		return err
	}
	if snap := f.Snapshot(); snap.State == flow.Authenticated {
		green.Printf("Signed in as %s\n", snap.Session.Address)
		return nil
	}
	if token != "" {
		_ = cred.Remove()
	}

	claim := core.AccountClaim{PublicKey: c.String("public-key"), Address: c.String("address")}
	challenge, err := f.Request(ctx, provider, claim)
	if err != nil {
		return err
	}

	var session core.Session
	switch ch := challenge.(type) {
	case *core.PayloadChallenge:
		session, err = awaitPayload(ctx, f, ch)
	case *core.NonceChallenge:
		session, err = signNonce(ctx, f, ch, os.Stdin)
	case *core.HashChallenge:
		session, err = signHash(ctx, f, ch, claim, os.Stdin)
	}
	if err != nil {
		return err
	}

	if err := cred.Save(session.Token); err != nil {
		return err
	}
	green.Printf("Signed in as %s\n", session.Address)
	return nil
}

func awaitPayload(ctx context.Context, f *flow.Flow, ch *core.PayloadChallenge) (core.Session, error) {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	qr, err := qrcode.New(ch.DeepLink, qrcode.Medium)
	if err != nil {
		return core.Session{}, fmt.Errorf("failed to create QR code: %w", err)
	}
	fmt.Print(qr.ToSmallString(false))
	cyan.Printf("Scan with Xaman or open %s\n", ch.DeepLink)
	if ch.Pushed {
		cyan.Println("A sign request was pushed to your device")
	}

	var last core.PayloadState
	for {
		snap := f.Snapshot()
		switch snap.State {
		case flow.Authenticated:
			return *snap.Session, nil
		case flow.Failed:
			return core.Session{}, errors.New(snap.Reason)
		case flow.Idle:
			return core.Session{}, flow.ErrSuperseded
		case flow.Verifying:
			if last != core.PayloadSigned {
				yellow.Println("Signed, verifying...")
				last = core.PayloadSigned
			}
		default:
			if snap.Payload == nil {
				return core.Session{}, errors.New("status channel closed before signing")
			}
			if snap.Payload.State != last {
				last = snap.Payload.State
				switch last {
				case core.PayloadPending:
					yellow.Println("Opened in app, waiting for signature...")
				case core.PayloadExpired:
					yellow.Println("Sign request expired")
				}
			}
		}

		select {
		case <-f.Changed():
		case <-time.After(time.Second):
		case <-ctx.Done():
			return core.Session{}, ctx.Err()
		}
	}
}

func signNonce(ctx context.Context, f *flow.Flow, ch *core.NonceChallenge, in io.Reader) (core.Session, error) {
	cyan := color.New(color.FgCyan)
	cyan.Println("Sign this message with GemWallet:")
	fmt.Println(hex.EncodeToString([]byte(ch.Token)))

	signature, err := prompt(in, "Signature: ")
	if err != nil {
		return core.Session{}, err
	}
	return f.Submit(ctx, &core.NonceResponse{Token: ch.Token, Signature: signature})
}

func signHash(ctx context.Context, f *flow.Flow, ch *core.HashChallenge, claim core.AccountClaim, in io.Reader) (core.Session, error) {
	cyan := color.New(color.FgCyan)
	cyan.Println("Sign this challenge with Crossmark:")
	fmt.Println(ch.Hex)

	reader := bufio.NewReader(in)
	signature, err := prompt(reader, "Signature: ")
	if err != nil {
		return core.Session{}, err
	}
	if claim.PublicKey == "" {
		if claim.PublicKey, err = prompt(reader, "Public key: "); err != nil {
			return core.Session{}, err
		}
	}
	if claim.Address == "" {
		if claim.Address, err = prompt(reader, "Address: "); err != nil {
			return core.Session{}, err
		}
	}

	return f.Submit(ctx, &core.HashResponse{
		Challenge: ch.Hex,
		Signature: signature,
		PublicKey: claim.PublicKey,
		Address:   claim.Address,
	})
}

func prompt(in io.Reader, label string) (string, error) {
	reader, ok := in.(*bufio.Reader)
	if !ok {
		reader = bufio.NewReader(in)
	}
	fmt.Print(label)
	line, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
