package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/uhyunpark/swapbook/pkg/app/core/order"
	"github.com/uhyunpark/swapbook/pkg/app/core/verify"
	"github.com/uhyunpark/swapbook/pkg/crypto"
)

type signOpts struct {
	platform     string
	key          string
	receiver     string
	buyCurrency  string
	sellCurrency string
	buyAmount    string
	sellAmount   string
	post         string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &signOpts{}

	cmd := &cobra.Command{
		Use:   "sign-order",
		Short: "Sign an order payload and print the submission JSON",
		Long: "Signs an order with an Ethereum or Algorand key using the canonical payload encoding " +
			"the exchange verifies. Without --key a new key is generated and printed to stderr.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSign(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.platform, "platform", verify.PlatformEthereum, "signing platform: Ethereum or Algorand")
	f.StringVar(&opts.key, "key", "", "hex private key (Ethereum) or hex 32-byte seed (Algorand)")
	f.StringVar(&opts.receiver, "receiver", "", "receiver_pk; defaults to the signer's address")
	f.StringVar(&opts.buyCurrency, "buy-currency", "Algorand", "currency to buy")
	f.StringVar(&opts.sellCurrency, "sell-currency", "Ethereum", "currency to sell")
	f.StringVar(&opts.buyAmount, "buy-amount", "", "amount to buy")
	f.StringVar(&opts.sellAmount, "sell-amount", "", "amount to sell")
	f.StringVar(&opts.post, "post", "", "exchange base URL; when set the submission is POSTed to /trade")
	_ = cmd.MarkFlagRequired("buy-amount")
	_ = cmd.MarkFlagRequired("sell-amount")

	return cmd
}

func runSign(opts *signOpts, stdout, stderr io.Writer) error {
	signer, generated, err := loadSigner(opts.platform, opts.key)
	if err != nil {
		return err
	}
	if generated != "" {
		fmt.Fprintf(stderr, "Address: %s\n", signer.Address())
		fmt.Fprintf(stderr, "Key: %s (KEEP SECRET!)\n", generated)
	}

	sub, err := buildSubmission(opts, signer)
	if err != nil {
		return err
	}
	body, err := json.Marshal(sub)
	if err != nil {
		return err
	}

	if opts.post == "" {
		fmt.Fprintln(stdout, string(body))
		return nil
	}
	accepted, err := postTrade(opts.post, body)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "accepted: %v\n", accepted)
	return nil
}

// loadSigner returns the signer for platform. When key is empty a fresh key
// is generated and its secret is returned as the second value.
func loadSigner(platform, key string) (verify.Signer, string, error) {
	switch platform {
	case verify.PlatformEthereum:
		if key == "" {
			s, err := crypto.GenerateKey()
			if err != nil {
				return nil, "", err
			}
			return verify.NewEthereumSigner(s), s.PrivateKeyHex(), nil
		}
		s, err := crypto.FromPrivateKeyHex(key)
		if err != nil {
			return nil, "", err
		}
		return verify.NewEthereumSigner(s), "", nil

	case verify.PlatformAlgorand:
		if key == "" {
			s, err := crypto.GenerateAlgorandKey()
			if err != nil {
				return nil, "", err
			}
			return verify.NewAlgorandSigner(s), s.SeedHex(), nil
		}
		seed, err := hex.DecodeString(strings.TrimPrefix(key, "0x"))
		if err != nil {
			return nil, "", fmt.Errorf("invalid hex seed: %w", err)
		}
		s, err := crypto.AlgorandFromSeed(seed)
		if err != nil {
			return nil, "", err
		}
		return verify.NewAlgorandSigner(s), "", nil

	default:
		return nil, "", fmt.Errorf("unsupported platform %q", platform)
	}
}

func buildSubmission(opts *signOpts, signer verify.Signer) (*order.Submission, error) {
	buy, err := decimal.NewFromString(opts.buyAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid buy amount: %w", err)
	}
	sell, err := decimal.NewFromString(opts.sellAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid sell amount: %w", err)
	}
	if !buy.IsPositive() || !sell.IsPositive() {
		return nil, fmt.Errorf("amounts must be positive")
	}

	receiver := opts.receiver
	if receiver == "" {
		receiver = signer.Address()
	}

	return verify.SignPayload(&order.Payload{
		SenderPK:     signer.Address(),
		ReceiverPK:   receiver,
		BuyCurrency:  opts.buyCurrency,
		SellCurrency: opts.sellCurrency,
		BuyAmount:    buy,
		SellAmount:   sell,
		Platform:     signer.Platform(),
	}, signer)
}

func postTrade(baseURL string, body []byte) (bool, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(strings.TrimSuffix(baseURL, "/")+"/trade", "application/json", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to post trade: %w", err)
	}
	defer resp.Body.Close()

	var accepted bool
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		return false, fmt.Errorf("unexpected response (status %d): %w", resp.StatusCode, err)
	}
	return accepted, nil
}
