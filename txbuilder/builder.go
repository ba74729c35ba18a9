// Package txbuilder constructs the unsigned transfer transactions the wallet
// is asked to sign: a system transfer for native SOL, or an SPL token
// transfer with conditional creation of the destination's associated token
// account.
package txbuilder

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/easternfortune/phantompay/chain"
	"github.com/easternfortune/phantompay/types"
)

// Builder builds unsigned transfer transactions against the static token
// table. A transaction is built fresh per attempt; the blockhash it carries
// expires and must never be reused.
type Builder struct {
	cfg   *types.Config
	chain chain.Client
}

func New(cfg *types.Config, chainClient chain.Client) *Builder {
	return &Builder{cfg: cfg, chain: chainClient}
}

// BuildTransfer produces an unsigned transaction moving the configured
// amount of tok from sender to the revenue wallet. The sender pays fees.
func (b *Builder) BuildTransfer(ctx context.Context, sender solana.PublicKey, tok types.Token) (*solana.Transaction, error) {
	info, err := b.cfg.TokenInfo(tok)
	if err != nil {
		return nil, err
	}

	var instructions []solana.Instruction
	if tok.IsNative() {
		instructions = []solana.Instruction{
			system.NewTransferInstruction(info.RawAmount, sender, b.cfg.RevenueWallet).Build(),
		}
	} else {
		instructions, err = b.splTransferInstructions(ctx, sender, info)
		if err != nil {
			return nil, err
		}
	}

	blockhash, err := b.chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(sender))
	if err != nil {
		return nil, fmt.Errorf("assemble transaction: %w", err)
	}
	return tx, nil
}

// splTransferInstructions resolves both associated token accounts and
// prepends an account-creation instruction when the destination's ATA does
// not exist yet. Only a structured not-found from the existence check means
// "create it"; any other lookup failure aborts the attempt.
func (b *Builder) splTransferInstructions(ctx context.Context, sender solana.PublicKey, info types.TokenInfo) ([]solana.Instruction, error) {
	mint := *info.Mint

	senderATA, _, err := solana.FindAssociatedTokenAddress(sender, mint)
	if err != nil {
		return nil, fmt.Errorf("derive sender token account: %w", err)
	}
	destATA, _, err := solana.FindAssociatedTokenAddress(b.cfg.RevenueWallet, mint)
	if err != nil {
		return nil, fmt.Errorf("derive destination token account: %w", err)
	}

	exists, err := b.chain.AccountExists(ctx, destATA)
	if err != nil {
		return nil, err
	}

	var instructions []solana.Instruction
	if !exists {
		instructions = append(instructions,
			associatedtokenaccount.NewCreateInstruction(sender, b.cfg.RevenueWallet, mint).Build(),
		)
	}
	instructions = append(instructions,
		token.NewTransferInstruction(info.RawAmount, senderATA, destATA, sender, nil).Build(),
	)
	return instructions, nil
}
