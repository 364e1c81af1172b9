package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"tycoon/internal/game"

	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptOptional(label string) (string, error) {
	fmt.Printf("%s: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	normalized := make(map[string]struct{}, len(options))
	for _, opt := range options {
		normalized[strings.ToLower(strings.TrimSpace(opt))] = struct{}{}
	}
	for {
		fmt.Printf("%s (%s) [%s]: ", label, strings.Join(options, "/"), defaultValue)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(defaultValue))
		}
		if _, ok := normalized[text]; ok {
			return text, nil
		}
		printWarn("Invalid option. Please pick one of the listed values.")
	}
}

func promptInt64(label string, min int64) (int64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			printWarn("Enter a whole number.")
			continue
		}
		if v < min {
			printWarn(fmt.Sprintf("Value must be >= %d", min))
			continue
		}
		return v, nil
	}
}

func renderState(raw map[string]any, section string) error {
	snap, err := decodeInto[game.Snapshot](raw)
	if err != nil {
		return err
	}

	phase := "NIGHT"
	if snap.IsDay {
		phase = "DAY"
	}
	accent.Printf("\n== TOWN (turn %d, %s, v%d) ==\n", snap.Turn, phase, snap.Version)
	fmt.Printf("Turn ends: %s\n", snap.TurnEndsAt.Local().Format("2006-01-02 15:04:05"))

	if section == "" || section == "users" {
		renderUsers(snap.Users)
	}
	if section == "" || section == "stocks" {
		renderStocks(snap.Stocks)
	}
	if section == "" || section == "requests" {
		renderRequests(snap.Requests)
	}
	if section == "" || section == "npcs" {
		renderNPCs(snap.NPCs)
	}
	if section == "feed" {
		renderFeed(snap.Feed)
	}
	if snap.Election != nil {
		fmt.Println()
		accent.Println("Election")
		fmt.Printf("Status: %s  Candidates: %s  Votes: %d  Ends: %s\n",
			snap.Election.Status,
			strings.Join(snap.Election.Candidates, ", "),
			len(snap.Election.Votes),
			snap.Election.EndsAt.Local().Format("15:04:05"),
		)
		if snap.Election.WinnerID != "" {
			fmt.Printf("Winner: %s\n", snap.Election.WinnerID)
		}
	}
	fmt.Println()
	return nil
}

func renderUsers(users []game.UserView) {
	fmt.Println()
	accent.Println("Players")
	if len(users) == 0 {
		printInfo("No players yet.")
		return
	}
	fmt.Printf("%-14s %-14s %-7s %12s %12s %10s %10s %-12s\n", "ID", "NAME", "ROLE", "BALANCE", "SAVINGS", "DEBT", "TAX DUE", "JOB")
	for _, u := range users {
		fmt.Printf("%-14s %-14s %-7s %12s %12s %10s %10s %-12s\n",
			truncate(u.ID, 14),
			truncate(u.Username, 14),
			u.Role,
			comma(u.Balance),
			comma(u.Deposit),
			comma(u.Debt),
			comma(u.UnpaidTax),
			truncate(u.Job, 12),
		)
	}
}

func renderStocks(stocks []game.StockView) {
	fmt.Println()
	accent.Println("Stocks")
	if len(stocks) == 0 {
		printInfo("No stocks listed.")
		return
	}
	fmt.Printf("%-12s %-20s %10s %10s %9s %-9s\n", "ID", "NAME", "PRICE", "PREV", "CHANGE", "ACCESS")
	for _, s := range stocks {
		access := "open"
		if s.IsForbidden {
			access = "locked"
		}
		fmt.Printf("%-12s %-20s %10s %10s %9s %-9s\n",
			s.ID,
			truncate(s.Name, 20),
			comma(s.Price),
			comma(s.PreviousPrice),
			colorizePercent(s.ChangePct),
			access,
		)
	}
}

func renderRequests(requests []game.Request) {
	fmt.Println()
	accent.Println("Requests")
	if len(requests) == 0 {
		printInfo("No requests.")
		return
	}
	fmt.Printf("%-38s %-12s %-14s %10s %-9s\n", "ID", "TYPE", "FROM", "AMOUNT", "STATUS")
	for _, r := range requests {
		fmt.Printf("%-38s %-12s %-14s %10s %-9s\n",
			r.ID,
			r.Type,
			truncate(r.RequesterID, 14),
			comma(r.Amount),
			r.Status,
		)
	}
}

func renderNPCs(npcs []game.NPCView) {
	fmt.Println()
	accent.Println("Visitors")
	if len(npcs) == 0 {
		printInfo("No visitors in town.")
		return
	}
	fmt.Printf("%-38s %-12s %-14s %-9s\n", "ID", "NAME", "TARGET", "LEAVES")
	for _, n := range npcs {
		fmt.Printf("%-38s %-12s %-14s %-9s\n",
			n.ID,
			truncate(n.Name, 12),
			truncate(n.TargetUserID, 14),
			n.LeaveTime.Local().Format("15:04:05"),
		)
	}
}

func renderFeed(feed []game.FeedEntry) {
	fmt.Println()
	accent.Println("Feed")
	if len(feed) == 0 {
		printInfo("Nothing has happened yet.")
		return
	}
	for _, e := range feed {
		fmt.Printf("%-20s %s\n", e.At.Local().Format("2006-01-02 15:04:05"), feedLine(e))
	}
}

func feedLine(e game.FeedEntry) string {
	switch {
	case e.Transfer != nil:
		return fmt.Sprintf("%-10s %s -> %s %s coins", e.Transfer.Type, orBank(e.Transfer.SenderID), orBank(e.Transfer.TargetID), comma(e.Transfer.Amount))
	case e.NPC != nil:
		return fmt.Sprintf("%-10s %s hit %s for %s coins", "visitor", e.NPC.Template, e.NPC.TargetID, comma(e.NPC.Amount))
	case e.Roulette != nil:
		return fmt.Sprintf("%-10s %s on %q (%s coins)", "roulette", e.Roulette.TargetID, e.Roulette.Text, colorizeSigned(e.Roulette.Effect))
	case e.Request != nil:
		return fmt.Sprintf("%-10s %s %s is %s", "request", e.Request.Type, e.Request.RequestID, e.Request.Status)
	case e.Election != nil:
		return fmt.Sprintf("%-10s winner %s", "election", e.Election.WinnerID)
	case e.Event != nil:
		return fmt.Sprintf("%-10s %s started", "event", e.Event.Kind)
	default:
		return ""
	}
}

func orBank(id string) string {
	if id == "" {
		return "bank"
	}
	return id
}

func renderTransaction(raw map[string]any) error {
	tx, err := decodeInto[game.Transaction](raw)
	if err != nil {
		return err
	}
	printSuccess("Transfer complete.")
	fmt.Printf("Tx:     %s\n", tx.ID)
	fmt.Printf("Amount: %s coins\n", comma(tx.Amount))
	fmt.Printf("To:     %s\n", tx.ReceiverID)
	return nil
}

func renderTradeResult(raw map[string]any, side, stockID string, qty int64) error {
	out, err := decodeInto[game.TradeResult](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("%s %d x %s filled.", strings.ToUpper(side), qty, stockID))
	fmt.Printf("Price:    %s coins\n", comma(out.Price))
	fmt.Printf("Notional: %s coins\n", comma(out.Notional))
	fmt.Printf("Balance:  %s coins\n", comma(out.Balance))
	fmt.Printf("Held:     %s\n", comma(out.Held))
	return nil
}

func renderSpinOutcome(raw map[string]any) error {
	out, err := decodeInto[game.SpinOutcome](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== ROULETTE ==\n")
	fmt.Printf("Landed on: %s\n", out.Item.Text)
	fmt.Printf("Effect:    %s coins\n", colorizeSigned(out.Result.Applied))
	fmt.Println()
	return nil
}

func renderBulkResults(raw map[string]any) error {
	payload, err := decodeInto[struct {
		Results []game.BulkResolveResult `json:"results"`
	}](raw)
	if err != nil {
		return err
	}
	approved, failed := 0, 0
	for _, r := range payload.Results {
		if r.Status == "approved" {
			approved++
			continue
		}
		failed++
		printError(fmt.Sprintf("Request %s failed: %s", r.RequestID, r.Error))
	}
	printSuccess(fmt.Sprintf("Approve-all complete: approved=%d failed=%d", approved, failed))
	return nil
}

func renderElectionOutcome(raw map[string]any) error {
	out, err := decodeInto[game.ElectionOutcome](raw)
	if err != nil {
		return err
	}
	switch out.Status {
	case "finished":
		printSuccess(fmt.Sprintf("Election finished. New banker: %s", out.WinnerID))
		for candidate, votes := range out.Tally {
			fmt.Printf("%-14s %d votes\n", truncate(candidate, 14), votes)
		}
		for candidate, reward := range out.Rewards {
			fmt.Printf("%-14s reward %s coins\n", truncate(candidate, 14), comma(reward))
		}
	case "not_due":
		printWarn("Election is still open for voting.")
	case "already_finished":
		printInfo("Election was already resolved.")
	default:
		printInfo("No election is running.")
	}
	return nil
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) > 3 {
		var b strings.Builder
		pre := len(s) % 3
		if pre > 0 {
			b.WriteString(s[:pre])
			b.WriteByte(',')
		}
		for i := pre; i < len(s); i += 3 {
			b.WriteString(s[i : i+3])
			if i+3 < len(s) {
				b.WriteByte(',')
			}
		}
		s = b.String()
	}
	if neg {
		return "-" + s
	}
	return s
}

func colorizeSigned(v int64) string {
	text := comma(v)
	if v > 0 {
		text = "+" + text
	}
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func colorizePercent(v float64) string {
	text := fmt.Sprintf("%+.2f%%", v)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}
