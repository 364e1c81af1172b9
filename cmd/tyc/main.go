package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	cl "tycoon/internal/cli"
	"tycoon/internal/config"
	"tycoon/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "tyc",
		Short:        "Tycoon town console",
		SilenceUsage: true,
	}

	root.AddCommand(
		newLoginCmd(&apiBase),
		newLogoutCmd(),
		newStateCmd(&apiBase),
		newTransferCmd(&apiBase),
		newBankCmd(&apiBase),
		newStocksCmd(&apiBase),
		newSpinCmd(&apiBase),
		newRequestsCmd(&apiBase),
		newElectionCmd(&apiBase),
		newNPCCmd(&apiBase),
		newTaxCmd(&apiBase),
		newEventCmd(&apiBase),
		newSyncCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func newLoginCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Login to the town",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, err := promptRequired("Username")
			if err != nil {
				return err
			}
			password, err := promptRequired("Password")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			session, err := client.Login(ctx, username, password)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{
				AccessToken: session.AccessToken,
				Username:    session.Identity.Username,
				UserID:      session.Identity.UserID,
			}); err != nil {
				return err
			}
			printSuccess("Login successful.")
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear local session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newStateCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "state [users|stocks|requests|npcs|feed]",
		Short: "Show the shared town state",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).State(ctx, sess.AccessToken, -1)
			if err != nil {
				return err
			}
			section := ""
			if len(args) == 1 {
				section = strings.ToLower(strings.TrimSpace(args[0]))
			}
			return renderState(out, section)
		},
	}
}

func newTransferCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "transfer [to-user-id]",
		Short: "Send coins to another player",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			toUserID, err := argOrPrompt(args, 0, "To user id")
			if err != nil {
				return err
			}
			amount, err := promptInt64("Amount", 1)
			if err != nil {
				return err
			}
			note, err := promptOptional("Note (optional)")
			if err != nil {
				return err
			}

			idem := uuid.NewString()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Transfer(ctx, sess.AccessToken, toUserID, amount, note, idem)
			if err != nil {
				if q, openErr := syncq.Open(); openErr == nil {
					if parkErr := q.Park(syncq.Entry{
						Method:         "POST",
						Path:           "/v1/transfer",
						Body:           map[string]any{"to_user_id": toUserID, "amount": amount, "description": note},
						IdempotencyKey: idem,
					}); parkErr == nil {
						printWarn(fmt.Sprintf("API unreachable (%v). Transfer queued for `tyc sync`.", err))
						return nil
					}
				}
				return err
			}
			return renderTransaction(out)
		},
	}
}

func newBankCmd(apiBase *string) *cobra.Command {
	bank := &cobra.Command{
		Use:   "bank",
		Short: "Savings account commands",
	}
	bank.AddCommand(
		&cobra.Command{
			Use:   "deposit",
			Short: "Move coins from cash into savings",
			RunE: func(cmd *cobra.Command, args []string) error {
				return savingsCommand(cmd, apiBase, "deposit")
			},
		},
		&cobra.Command{
			Use:   "withdraw",
			Short: "Move coins from savings back to cash",
			RunE: func(cmd *cobra.Command, args []string) error {
				return savingsCommand(cmd, apiBase, "withdraw")
			},
		},
	)
	return bank
}

func savingsCommand(cmd *cobra.Command, apiBase *string, op string) error {
	sess, err := cl.LoadSession()
	if err != nil {
		return fmt.Errorf("login required: %w", err)
	}
	amount, err := promptInt64("Amount", 1)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	client := newClient(apiBase)
	idem := uuid.NewString()
	label := "Deposit"
	if op == "deposit" {
		_, err = client.Deposit(ctx, sess.AccessToken, amount, idem)
	} else {
		label = "Withdraw"
		_, err = client.Withdraw(ctx, sess.AccessToken, amount, idem)
	}
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("%s of %s coins complete.", label, comma(amount)))
	return nil
}

func newStocksCmd(apiBase *string) *cobra.Command {
	stocks := &cobra.Command{
		Use:     "stocks",
		Short:   "Stock market commands",
		Aliases: []string{"stock"},
	}
	stocks.AddCommand(
		&cobra.Command{
			Use:   "buy [stock-id]",
			Short: "Buy shares at the current tick price",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return tradeCommand(cmd, apiBase, args, "buy")
			},
		},
		&cobra.Command{
			Use:   "sell [stock-id]",
			Short: "Sell shares at the current tick price",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return tradeCommand(cmd, apiBase, args, "sell")
			},
		},
	)
	return stocks
}

func tradeCommand(cmd *cobra.Command, apiBase *string, args []string, side string) error {
	sess, err := cl.LoadSession()
	if err != nil {
		return fmt.Errorf("login required: %w", err)
	}
	stockID, err := argOrPrompt(args, 0, "Stock id")
	if err != nil {
		return err
	}
	qty, err := promptInt64("Quantity", 1)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	out, err := newClient(apiBase).TradeStock(ctx, sess.AccessToken, stockID, side, qty, uuid.NewString())
	if err != nil {
		return err
	}
	return renderTradeResult(out, side, stockID, qty)
}

func newSpinCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "spin",
		Short: "Spin the town roulette",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			target, err := promptOptional("Target user id (empty for yourself)")
			if err != nil {
				return err
			}
			cost, err := promptInt64("Spin cost", 0)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).SpinRoulette(ctx, sess.AccessToken, target, cost, uuid.NewString())
			if err != nil {
				return err
			}
			return renderSpinOutcome(out)
		},
	}
}

func newRequestsCmd(apiBase *string) *cobra.Command {
	requests := &cobra.Command{
		Use:     "requests",
		Short:   "Banker request queue commands",
		Aliases: []string{"req"},
	}
	requests.AddCommand(
		&cobra.Command{
			Use:   "submit",
			Short: "Submit a request to the banker",
			RunE: func(cmd *cobra.Command, args []string) error {
				return submitRequestCommand(cmd, apiBase)
			},
		},
		&cobra.Command{
			Use:   "approve [request-id]",
			Short: "Approve a pending request (banker)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return resolveRequestCommand(cmd, apiBase, args, true)
			},
		},
		&cobra.Command{
			Use:   "reject [request-id]",
			Short: "Reject a pending request (banker)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return resolveRequestCommand(cmd, apiBase, args, false)
			},
		},
		&cobra.Command{
			Use:   "approve-all",
			Short: "Approve every pending request (banker)",
			RunE: func(cmd *cobra.Command, args []string) error {
				sess, err := cl.LoadSession()
				if err != nil {
					return fmt.Errorf("login required: %w", err)
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
				defer cancel()
				out, err := newClient(apiBase).ApproveAllRequests(ctx, sess.AccessToken, uuid.NewString())
				if err != nil {
					return err
				}
				return renderBulkResults(out)
			},
		},
	)
	return requests
}

func submitRequestCommand(cmd *cobra.Command, apiBase *string) error {
	sess, err := cl.LoadSession()
	if err != nil {
		return fmt.Errorf("login required: %w", err)
	}
	reqType, err := promptChoice("Type", []string{"loan", "repay_loan", "tax", "transfer", "stock_trade", "job_change"}, "loan")
	if err != nil {
		return err
	}

	var amount int64
	details := map[string]any{}
	switch reqType {
	case "transfer":
		to, err := promptRequired("To user id")
		if err != nil {
			return err
		}
		details["to_user_id"] = to
		amount, err = promptInt64("Amount", 1)
		if err != nil {
			return err
		}
	case "stock_trade":
		stockID, err := promptRequired("Stock id")
		if err != nil {
			return err
		}
		side, err := promptChoice("Side", []string{"buy", "sell"}, "buy")
		if err != nil {
			return err
		}
		qty, err := promptInt64("Quantity", 1)
		if err != nil {
			return err
		}
		details["stock_id"] = stockID
		details["side"] = side
		details["quantity"] = qty
	case "job_change":
		job, err := promptRequired("New job")
		if err != nil {
			return err
		}
		details["job"] = job
	default:
		amount, err = promptInt64("Amount", 1)
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	out, err := newClient(apiBase).SubmitRequest(ctx, sess.AccessToken, reqType, amount, details, uuid.NewString())
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Request submitted: %v", out["request_id"]))
	return nil
}

func resolveRequestCommand(cmd *cobra.Command, apiBase *string, args []string, approve bool) error {
	sess, err := cl.LoadSession()
	if err != nil {
		return fmt.Errorf("login required: %w", err)
	}
	requestID, err := argOrPrompt(args, 0, "Request id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	out, err := newClient(apiBase).ResolveRequest(ctx, sess.AccessToken, requestID, approve, uuid.NewString())
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Request %v is now %v.", out["request_id"], out["status"]))
	return nil
}

func newElectionCmd(apiBase *string) *cobra.Command {
	election := &cobra.Command{
		Use:   "election",
		Short: "Banker election commands",
	}
	election.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Start a banker election (banker)",
			RunE: func(cmd *cobra.Command, args []string) error {
				sess, err := cl.LoadSession()
				if err != nil {
					return fmt.Errorf("login required: %w", err)
				}
				raw, err := promptRequired("Candidate user ids (comma separated)")
				if err != nil {
					return err
				}
				var candidates []string
				for _, c := range strings.Split(raw, ",") {
					if c = strings.TrimSpace(c); c != "" {
						candidates = append(candidates, c)
					}
				}
				minutes, err := promptInt64("Duration minutes", 1)
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				_, err = newClient(apiBase).StartElection(ctx, sess.AccessToken, candidates, minutes*60, uuid.NewString())
				if err != nil {
					return err
				}
				printSuccess("Election started.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "vote [candidate-id]",
			Short: "Vote for a candidate",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				sess, err := cl.LoadSession()
				if err != nil {
					return fmt.Errorf("login required: %w", err)
				}
				candidateID, err := argOrPrompt(args, 0, "Candidate id")
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				if _, err := newClient(apiBase).Vote(ctx, sess.AccessToken, candidateID, uuid.NewString()); err != nil {
					return err
				}
				printSuccess("Vote recorded.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "resolve",
			Short: "Resolve a finished election (banker)",
			RunE: func(cmd *cobra.Command, args []string) error {
				sess, err := cl.LoadSession()
				if err != nil {
					return fmt.Errorf("login required: %w", err)
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				out, err := newClient(apiBase).ResolveElection(ctx, sess.AccessToken, uuid.NewString())
				if err != nil {
					return err
				}
				return renderElectionOutcome(out)
			},
		},
	)
	return election
}

func newNPCCmd(apiBase *string) *cobra.Command {
	npc := &cobra.Command{
		Use:   "npc",
		Short: "NPC commands",
	}
	npc.AddCommand(&cobra.Command{
		Use:   "delete [npc-id]",
		Short: "Remove an active NPC without firing its effect (banker)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			npcID, err := argOrPrompt(args, 0, "NPC id")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if _, err := newClient(apiBase).DeleteNPC(ctx, sess.AccessToken, npcID, uuid.NewString()); err != nil {
				return err
			}
			printSuccess("NPC removed.")
			return nil
		},
	})
	return npc
}

func newTaxCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tax [user-id]",
		Short: "Assess tax on a player (banker)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			userID, err := argOrPrompt(args, 0, "User id")
			if err != nil {
				return err
			}
			amount, err := promptInt64("Amount", 1)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if _, err := newClient(apiBase).AssessTax(ctx, sess.AccessToken, userID, amount, uuid.NewString()); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Tax of %s coins assessed on %s.", comma(amount), userID))
			return nil
		},
	}
}

func newEventCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "event",
		Short: "Start a timed game event (banker)",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			kind, err := promptChoice("Kind", []string{"boom", "bust", "epidemic", "grant"}, "boom")
			if err != nil {
				return err
			}
			target := ""
			var effect int64
			if kind == "grant" || kind == "epidemic" {
				target, err = promptRequired("Target user id")
				if err != nil {
					return err
				}
				effect, err = promptInt64("Effect amount", 1)
				if err != nil {
					return err
				}
			}
			minutes, err := promptInt64("Duration minutes", 1)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).StartEvent(ctx, sess.AccessToken, kind, target, effect, minutes*60, uuid.NewString())
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Event started: %v", out["event_id"]))
			return nil
		},
	}
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay locally queued offline writes",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			queue, err := syncq.Open()
			if err != nil {
				return err
			}
			entries, err := queue.Entries()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			remaining := make([]syncq.Entry, 0, len(entries))
			success := 0
			for _, e := range entries {
				_, err := client.Do(ctx, e.Method, e.Path, sess.AccessToken, e.Body, e.IdempotencyKey)
				if err != nil {
					remaining = append(remaining, e)
					printError(fmt.Sprintf("Sync failed for %s %s: %v", e.Method, e.Path, err))
					continue
				}
				success++
			}
			if err := queue.Keep(remaining); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", success, len(remaining)))
			return nil
		},
	}
}

func argOrPrompt(args []string, idx int, label string) (string, error) {
	if len(args) > idx {
		if v := strings.TrimSpace(args[idx]); v != "" {
			return v, nil
		}
	}
	return promptRequired(label)
}
