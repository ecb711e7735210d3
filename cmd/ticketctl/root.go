package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"eventpass/internal/checkin/token"
)

const secretEnv = "TICKET_SIGNING_SECRET"

var errNoSecret = errors.New(secretEnv + " is not set")

// env is the environment lookup; tests replace it.
type env func(string) string

func newRootCmd(getenv env) *cobra.Command {
	root := &cobra.Command{
		Use:   "ticketctl",
		Short: "Mint and inspect eventpass check-in tickets",
		Long: `ticketctl works directly with the ticket codec. It never talks to the
server or the database, so minted tickets reference whatever ids you pass.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMintCmd(getenv, time.Now))
	root.AddCommand(newInspectCmd(getenv, time.Now))
	return root
}

func codecFromEnv(getenv env) (*token.Codec, error) {
	secret := getenv(secretEnv)
	if secret == "" {
		return nil, errNoSecret
	}
	return token.NewCodec([]byte(secret))
}
