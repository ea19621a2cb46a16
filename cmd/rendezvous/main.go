// Command rendezvous is a thin command-line front end over the client core:
// it fetches credentials, manages recipient registration and submits or
// polls disclosures. All protocol logic lives in the library packages.
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"github.com/spf13/cobra"

	"github.com/berkmancenter/rendezvous-client/config"
	"github.com/berkmancenter/rendezvous-client/crypto"
	"github.com/berkmancenter/rendezvous-client/disclosure"
	"github.com/berkmancenter/rendezvous-client/recipient"
	"github.com/berkmancenter/rendezvous-client/rendezvous"
)

var (
	configPath string
	keyPath    string
	name       string
)

func main() {
	root := &cobra.Command{
		Use:           "rendezvous",
		Short:         "anonymous threshold disclosure client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file")

	root.AddCommand(keygenCmd(), credentialCmd(), registerCmd(), recipientsCmd(), discloseCmd(), inboxCmd(), deleteCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadSet() (rendezvous.Set, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	switch cfg.LogLevel {
	case "debug":
		rendezvous.SetLogLevel(log.DEBUG)
	case "warn":
		rendezvous.SetLogLevel(log.WARN)
	case "error":
		rendezvous.SetLogLevel(log.ERROR)
	default:
		rendezvous.SetLogLevel(log.INFO)
	}
	return cfg.Set()
}

func loadKey() (crypto.PrivateKey, recipient.Recipient, error) {
	raw, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, recipient.Recipient{}, fmt.Errorf("reading key file: %w", err)
	}
	priv, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, recipient.Recipient{}, fmt.Errorf("decoding key file: %w", err)
	}
	pub, err := crypto.PrivateKey(priv).Public()
	if err != nil {
		return nil, recipient.Recipient{}, err
	}
	return priv, recipient.Recipient{Name: name, PublicKey: pub}, nil
}

func keygenCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "generate a recipient keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			pub, err := priv.Public()
			if err != nil {
				return err
			}
			encoded := base64.StdEncoding.EncodeToString(priv)
			if out == "" {
				fmt.Println(encoded)
			} else if err := os.WriteFile(out, []byte(encoded+"\n"), 0o600); err != nil {
				return err
			}
			fmt.Println("public key:", base64.StdEncoding.EncodeToString(pub))
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write the private key to this file instead of stdout")
	return cmd
}

func credentialCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "credential",
		Short: "request credentials from every rendezvous point",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := loadSet()
			if err != nil {
				return err
			}
			credentials := set.RequestCredentials(context.Background())
			fmt.Printf("collected %d of %d credentials\n", len(credentials), len(set))
			org := credentials.CommonOrganization()
			if org == "" {
				return fmt.Errorf("credentials do not share an organization")
			}
			fmt.Println("organization:", org)
			if expiry, ok := credentials.SoonestExpiration(); ok {
				fmt.Println("valid until:", expiry)
			}
			return nil
		},
	}
}

func registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "register a recipient with every rendezvous point",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := loadSet()
			if err != nil {
				return err
			}
			_, r, err := loadKey()
			if err != nil {
				return err
			}
			if !set.RegisterRecipient(context.Background(), r) {
				return fmt.Errorf("registration did not succeed at every rendezvous point")
			}
			fmt.Println("registered", r.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "recipient display name")
	cmd.Flags().StringVar(&keyPath, "key", "", "path to the recipient private key")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("key")
	return cmd
}

func recipientsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recipients",
		Short: "list recipients registered with every rendezvous point",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := loadSet()
			if err != nil {
				return err
			}
			for _, r := range set.RequestCommonRecipients(context.Background()) {
				fmt.Printf("%s\t%s\n", r.Name, base64.StdEncoding.EncodeToString(r.PublicKey))
			}
			return nil
		},
	}
}

func discloseCmd() *cobra.Command {
	var to, text, author string
	cmd := &cobra.Command{
		Use:   "disclose",
		Short: "submit a disclosure to a recipient",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := loadSet()
			if err != nil {
				return err
			}
			ctx := context.Background()

			var target *recipient.Recipient
			for _, r := range set.RequestCommonRecipients(ctx) {
				if r.Name == to {
					target = &r
					break
				}
			}
			if target == nil {
				return fmt.Errorf("recipient %q is not registered with every rendezvous point", to)
			}

			credentials := set.RequestCredentials(ctx)
			if len(credentials) != len(set) {
				return fmt.Errorf("collected %d of %d credentials", len(credentials), len(set))
			}
			if credentials.CommonOrganization() == "" {
				return fmt.Errorf("credentials do not share an organization")
			}

			d := disclosure.New(text, author)
			if !set.SubmitDisclosure(ctx, d, *target, credentials) {
				return fmt.Errorf("submission did not succeed at every rendezvous point")
			}
			fmt.Println("submitted", d.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient name")
	cmd.Flags().StringVar(&text, "text", "", "disclosure text")
	cmd.Flags().StringVar(&author, "author", "", "author display name")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("text")
	return cmd
}

func inboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "poll every rendezvous point and print reconstructed disclosures",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := loadSet()
			if err != nil {
				return err
			}
			priv, r, err := loadKey()
			if err != nil {
				return err
			}
			for _, d := range set.CheckInbox(context.Background(), r, priv) {
				fmt.Printf("%s\t%s\t%s\n%s\n", d.ID, d.Organization, d.Author, d.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "recipient display name")
	cmd.Flags().StringVar(&keyPath, "key", "", "path to the recipient private key")
	cmd.MarkFlagRequired("key")
	return cmd
}

func deleteCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "delete a disclosure's shares from every rendezvous point",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := loadSet()
			if err != nil {
				return err
			}
			priv, r, err := loadKey()
			if err != nil {
				return err
			}
			disclosureID, err := uuid.Parse(id)
			if err != nil {
				return fmt.Errorf("invalid disclosure id: %w", err)
			}
			if !set.DeleteDisclosure(context.Background(), disclosureID, r, priv) {
				return fmt.Errorf("deletion did not succeed at every rendezvous point")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "disclosure id")
	cmd.Flags().StringVar(&keyPath, "key", "", "path to the recipient private key")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("key")
	return cmd
}
