// Command ticketctl runs administrative tasks against the ticket store and
// the artifact directory.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spec-kit/qr-ticket-service/internal/api/dto"
	"github.com/spec-kit/qr-ticket-service/internal/app"
	"github.com/spec-kit/qr-ticket-service/internal/auth"
	"github.com/spec-kit/qr-ticket-service/internal/config"
	"github.com/spec-kit/qr-ticket-service/internal/domain"
	"github.com/spec-kit/qr-ticket-service/internal/imaging"
	"github.com/spec-kit/qr-ticket-service/internal/service"
)

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			printHelp(os.Stderr)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	command, rest := args[0], args[1:]

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	switch command {
	case "purge-artifacts":
		return purgeArtifacts(cfg, rest, stdout)
	case "list":
		return listTickets(cfg, rest, stdout)
	case "hash-password":
		return hashPassword(cfg, rest, stdin, stdout)
	case "token":
		return mintToken(cfg, rest, stdout)
	case "help", "-h", "--help":
		printHelp(stdout)
		return nil
	default:
		return fmt.Errorf("unknown command %q: %w", command, errUsage)
	}
}

func purgeArtifacts(cfg *config.Config, args []string, stdout io.Writer) error {
	flagSet := pflag.NewFlagSet("purge-artifacts", pflag.ContinueOnError)
	dir := flagSet.String("dir", cfg.Artifacts.Dir, "artifact directory")
	yes := flagSet.BoolP("yes", "y", false, "confirm deletion")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if !*yes {
		return fmt.Errorf("refusing to delete artifacts in %s without --yes", *dir)
	}

	img, err := imaging.New(*dir, 0)
	if err != nil {
		return err
	}
	removed, err := img.Purge()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "removed %d artifacts from %s\n", removed, *dir)
	return nil
}

func listTickets(cfg *config.Config, args []string, stdout io.Writer) error {
	flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
	page := flagSet.Int("page", 1, "page number")
	perPage := flagSet.Int("per-page", 20, "tickets per page")
	asJSON := flagSet.Bool("json", false, "print JSON instead of a table")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	store, err := app.OpenTicketStore(ctx, cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := service.NewTicketQueryService(store.Tickets).List(ctx, *page, *perPage)
	if err != nil {
		return err
	}
	return printTickets(stdout, result, *asJSON)
}

func printTickets(stdout io.Writer, result *service.TicketPage, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(dto.NewTicketListResponse(result))
	}

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NUMBER\tVERIFIED\tATTENDANCE\tCREATED")
	for _, ticket := range result.Tickets {
		attendance := "-"
		if ticket.AttendanceTime != nil {
			attendance = ticket.AttendanceTime.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", ticket.TicketNumber, ticket.Verified, attendance,
			ticket.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "page %d, %d of %d tickets\n", result.Page, len(result.Tickets), result.Total)
	return nil
}

func hashPassword(cfg *config.Config, args []string, stdin io.Reader, stdout io.Writer) error {
	flagSet := pflag.NewFlagSet("hash-password", pflag.ContinueOnError)
	cost := flagSet.Int("cost", cfg.Auth.BcryptCost, "bcrypt cost")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	// The password is read from stdin so it stays out of shell history.
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("empty password on stdin")
	}

	hashed, err := auth.HashPassword(password, *cost)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, hashed)
	return nil
}

func mintToken(cfg *config.Config, args []string, stdout io.Writer) error {
	flagSet := pflag.NewFlagSet("token", pflag.ContinueOnError)
	username := flagSet.String("username", cfg.Auth.StaffUsername, "token subject")
	role := flagSet.String("role", string(domain.StaffRoleDoor), "staff role (DOOR or ADMIN)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	staffRole := domain.StaffRole(strings.ToUpper(*role))
	if staffRole != domain.StaffRoleDoor && staffRole != domain.StaffRoleAdmin {
		return fmt.Errorf("unknown role %q", *role)
	}

	token, expiresAt, err := service.NewAuthService(cfg.Auth).IssueToken(*username, staffRole)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	fmt.Fprintf(stdout, "expires %s\n", expiresAt.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}

func printHelp(out io.Writer) {
	fmt.Fprint(out, `ticketctl: administrative tasks for the QR ticket service.

Configuration is read from the same environment (and .env file) as the
API server.

Usage:
  ticketctl <command> [flags]

Commands:
  purge-artifacts --yes [--dir DIR]   delete every generated ticket image
  list [--page N] [--per-page N]      list issued tickets
  hash-password [--cost N]            bcrypt the password read from stdin
  token [--username U] [--role R]     mint a staff bearer token
`)
}
