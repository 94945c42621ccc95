package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jrsteele09/go-hotspot-client/api"
	"github.com/jrsteele09/go-hotspot-client/callback"
	"github.com/jrsteele09/go-hotspot-client/internal/config"
	"github.com/jrsteele09/go-hotspot-client/notify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

type command struct {
	summary string
	// path is the screen the command stands for; the guard checks it first.
	path func(args []string) string
	run  func(ctx context.Context, args []string) error
}

func static(path string) func([]string) string {
	return func([]string) string { return path }
}

func (a *App) commandTable() map[string]command {
	return map[string]command{
		"login":         {summary: "Sign in with email and password", path: static("/auth"), run: a.runLogin},
		"signup":        {summary: "Create an account", path: static("/auth/signup"), run: a.runSignup},
		"verify":        {summary: "Confirm the emailed verification code", path: static("/auth/verify"), run: a.runVerify},
		"social-login":  {summary: "Sign in with Google or GitHub", path: static("/auth/social"), run: a.runSocialLogin},
		"logout":        {summary: "Sign out", path: static("/logout"), run: a.runLogout},
		"whoami":        {summary: "Show the signed in user", path: static("/profile"), run: a.runWhoami},
		"packages":      {summary: "List packages, or show one by id", path: a.packagesPath, run: a.runPackages},
		"invoice":       {summary: "Create, list or show invoices", path: static("/invoice"), run: a.runInvoice},
		"notifications": {summary: "List notifications or mark them read", path: static("/notification"), run: a.runNotifications},
		"push":          {summary: "Manage Web Push subscriptions", path: static("/push"), run: a.runPush},
	}
}

func (a *App) flagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

// parse returns done=true when help was printed.
func parse(fs *pflag.FlagSet, args []string) (done bool, err error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return true, nil
		}
		return false, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	return false, nil
}

func required(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: --%s is required", ErrUsage, name)
	}
	return nil
}

func (a *App) runLogin(ctx context.Context, args []string) error {
	fs := a.flagSet("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", config.GetEnv("HOTSPOT_PASSWORD", ""), "account password (or HOTSPOT_PASSWORD)")
	if done, err := parse(fs, args); done || err != nil {
		return err
	}
	if err := errors.Join(required("email", *email), required("password", *password)); err != nil {
		return err
	}

	res, err := a.backend.Login(ctx, *email, *password)
	if err != nil {
		return fmt.Errorf("[login] %w", err)
	}
	return a.commitLogin(res)
}

func (a *App) commitLogin(res *api.AuthResult) error {
	if err := a.session.Login(res.AccessToken, res.User); err != nil {
		return fmt.Errorf("[login] %w", err)
	}
	fmt.Fprintf(a.out, "Signed in as %s.\n", displayName(a.session.User()))
	return nil
}

func (a *App) runSignup(ctx context.Context, args []string) error {
	fs := a.flagSet("signup")
	name := fs.String("name", "", "full name")
	email := fs.String("email", "", "account email")
	password := fs.String("password", config.GetEnv("HOTSPOT_PASSWORD", ""), "account password (or HOTSPOT_PASSWORD)")
	if done, err := parse(fs, args); done || err != nil {
		return err
	}
	if err := errors.Join(required("name", *name), required("email", *email), required("password", *password)); err != nil {
		return err
	}

	if err := a.backend.Signup(ctx, api.SignupRequest{Fullname: *name, Email: *email, Password: *password}); err != nil {
		return fmt.Errorf("[signup] %w", err)
	}
	fmt.Fprintf(a.out, "Account created. A verification code was sent to %s; run `hotspot verify`.\n", *email)
	return nil
}

func (a *App) runVerify(ctx context.Context, args []string) error {
	fs := a.flagSet("verify")
	email := fs.String("email", "", "account email")
	otp := fs.String("otp", "", "verification code")
	resend := fs.Bool("resend", false, "send a new code instead of verifying")
	if done, err := parse(fs, args); done || err != nil {
		return err
	}
	if err := required("email", *email); err != nil {
		return err
	}

	if *resend {
		if err := a.backend.ResendOTP(ctx, *email); err != nil {
			return fmt.Errorf("[verify] %w", err)
		}
		fmt.Fprintf(a.out, "A new code was sent to %s.\n", *email)
		return nil
	}
	if err := required("otp", *otp); err != nil {
		return err
	}

	res, err := a.backend.VerifyOTP(ctx, *email, *otp)
	if err != nil {
		return fmt.Errorf("[verify] %w", err)
	}
	return a.commitLogin(res)
}

func (a *App) runSocialLogin(ctx context.Context, args []string) error {
	fs := a.flagSet("social-login")
	provider := fs.String("provider", "google", "google or github")
	addr := fs.String("addr", a.cfg.GetCallbackAddr(), "loopback address for the provider callback")
	timeout := fs.Duration("timeout", 5*time.Minute, "how long to wait for the browser")
	if done, err := parse(fs, args); done || err != nil {
		return err
	}

	srv := callback.New(a.backend, a.session, a.routes, a.cfg.GetAccessTokenCookieName(),
		callback.WithEnv(a.cfg.GetEnv()), callback.WithProviders("google", "github"))

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ctx, *addr, func(net.Addr) {
			fmt.Fprintf(a.out, "Open %s%s in your browser to continue.\n", a.backend.BaseURL(), api.EndpointSocialStart(*provider))
		})
	}()

	select {
	case res := <-srv.Results():
		cancel()
		<-serveErr
		if res.Err != nil {
			return fmt.Errorf("[social-login] %w", res.Err)
		}
		fmt.Fprintf(a.out, "Signed in with %s as %s.\n", res.Provider, displayName(a.session.User()))
		return nil
	case err := <-serveErr:
		if err != nil {
			return err
		}
		return fmt.Errorf("[social-login] %w", ctx.Err())
	}
}

func (a *App) runLogout(ctx context.Context, args []string) error {
	if done, err := parse(a.flagSet("logout"), args); done || err != nil {
		return err
	}
	if err := a.backend.Logout(ctx, a.session.AccessToken()); err != nil {
		log.Err(err).Msg("Backend logout failed")
	}
	a.session.Logout()
	fmt.Fprintln(a.out, "Signed out.")
	return nil
}

func (a *App) runWhoami(_ context.Context, args []string) error {
	if done, err := parse(a.flagSet("whoami"), args); done || err != nil {
		return err
	}

	user := a.session.User()
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "User:\t%s\n", displayName(user))
	if email, ok := user["email"].(string); ok && email != "" {
		fmt.Fprintf(w, "Email:\t%s\n", email)
	}
	if roles := profileStrings(user["roles"]); len(roles) > 0 {
		fmt.Fprintf(w, "Roles:\t%s\n", strings.Join(roles, ", "))
	}
	if tok, err := a.session.Token(); err == nil && !tok.Expiry.IsZero() {
		fmt.Fprintf(w, "Token expires:\t%s\n", tok.Expiry.Local().Format(time.RFC1123))
	}
	return w.Flush()
}

func (a *App) packagesPath(args []string) string {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return "/package/" + args[0]
	}
	return "/package"
}

func (a *App) runPackages(ctx context.Context, args []string) error {
	fs := a.flagSet("packages")
	if done, err := parse(fs, args); done || err != nil {
		return err
	}

	if id := fs.Arg(0); id != "" {
		p, err := a.client.FindPackage(ctx, id)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "ID:\t%s\nName:\t%s\nPrice:\t%.2f\n", p.ID, p.Name, p.Price)
		if p.Duration > 0 {
			fmt.Fprintf(w, "Duration:\t%d days\n", p.Duration)
		}
		if p.Speed != "" {
			fmt.Fprintf(w, "Speed:\t%s\n", p.Speed)
		}
		if p.Description != "" {
			fmt.Fprintf(w, "Description:\t%s\n", p.Description)
		}
		return w.Flush()
	}

	packages, err := a.client.ListPackages(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPRICE\tDAYS")
	for _, p := range packages {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%d\n", p.ID, p.Name, p.Price, p.Duration)
	}
	return w.Flush()
}

func (a *App) runInvoice(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: invoice needs one of create, list, show", ErrUsage)
	}

	switch args[0] {
	case "create":
		fs := a.flagSet("invoice create")
		packageID := fs.String("package", "", "package id")
		method := fs.String("method", "", "payment method")
		if done, err := parse(fs, args[1:]); done || err != nil {
			return err
		}
		if err := required("package", *packageID); err != nil {
			return err
		}
		inv, err := a.client.CreateInvoice(ctx, api.CreateInvoiceRequest{PackageID: api.ID(*packageID), PaymentMethod: *method})
		if err != nil {
			return err
		}
		return a.printInvoice(inv)
	case "list":
		invoices, err := a.client.ListInvoices(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPACKAGE\tAMOUNT\tSTATUS")
		for _, inv := range invoices {
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", inv.ID, inv.PackageID, inv.Amount, inv.Status)
		}
		return w.Flush()
	case "show":
		if len(args) < 2 {
			return fmt.Errorf("%w: invoice show <id>", ErrUsage)
		}
		inv, err := a.client.FindInvoice(ctx, args[1])
		if err != nil {
			return err
		}
		return a.printInvoice(inv)
	default:
		return fmt.Errorf("%w: unknown invoice command %q", ErrUsage, args[0])
	}
}

func (a *App) printInvoice(inv *api.Invoice) error {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Invoice:\t%s\n", inv.ID)
	if inv.Number != "" {
		fmt.Fprintf(w, "Number:\t%s\n", inv.Number)
	}
	fmt.Fprintf(w, "Package:\t%s\nAmount:\t%.2f\nStatus:\t%s\n", inv.PackageID, inv.Amount, inv.Status)
	if inv.PaymentURL != "" {
		fmt.Fprintf(w, "Pay at:\t%s\n", inv.PaymentURL)
	}
	return w.Flush()
}

func (a *App) runNotifications(ctx context.Context, args []string) error {
	fs := a.flagSet("notifications")
	read := fs.String("read", "", "mark the notification with this id as read")
	readAll := fs.Bool("read-all", false, "mark every notification as read")
	if done, err := parse(fs, args); done || err != nil {
		return err
	}

	switch {
	case *readAll:
		if err := a.client.MarkAllNotificationsRead(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "All notifications marked as read.")
		return nil
	case *read != "":
		if err := a.client.MarkNotificationRead(ctx, *read); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Notification %s marked as read.\n", *read)
		return nil
	}

	notes, err := a.client.ListNotifications(ctx)
	if err != nil {
		return err
	}
	if len(notes) == 0 {
		fmt.Fprintln(a.out, "No notifications.")
		return nil
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, n := range notes {
		marker := "*"
		if n.IsRead {
			marker = " "
		}
		fmt.Fprintf(w, "%s %s\t%s\t%s\n", marker, n.ID, n.Title, n.Body)
	}
	return w.Flush()
}

func (a *App) runPush(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: push needs one of subscribe, unsubscribe, list, send", ErrUsage)
	}

	switch args[0] {
	case "subscribe":
		fs := a.flagSet("push subscribe")
		endpoint := fs.String("endpoint", "", "push service endpoint")
		p256dh := fs.String("p256dh", "", "subscription public key")
		auth := fs.String("auth", "", "subscription auth secret")
		if done, err := parse(fs, args[1:]); done || err != nil {
			return err
		}
		if err := errors.Join(required("endpoint", *endpoint), required("p256dh", *p256dh), required("auth", *auth)); err != nil {
			return err
		}
		sub := api.PushSubscription{Endpoint: *endpoint, Keys: api.PushKeys{P256dh: *p256dh, Auth: *auth}}
		if err := a.client.RegisterPushSubscription(ctx, sub); err != nil {
			return err
		}
		id, added, err := a.registry.Subscribe(sub)
		if err != nil {
			return err
		}
		if !added {
			fmt.Fprintf(a.out, "Already subscribed (%s).\n", id)
			return nil
		}
		fmt.Fprintf(a.out, "Subscribed (%s).\n", id)
		return nil
	case "unsubscribe":
		fs := a.flagSet("push unsubscribe")
		endpoint := fs.String("endpoint", "", "push service endpoint")
		if done, err := parse(fs, args[1:]); done || err != nil {
			return err
		}
		if err := required("endpoint", *endpoint); err != nil {
			return err
		}
		removed, err := a.registry.Unsubscribe(*endpoint)
		if err != nil {
			return err
		}
		if !removed {
			fmt.Fprintln(a.out, "No such subscription.")
			return nil
		}
		fmt.Fprintln(a.out, "Unsubscribed.")
		return nil
	case "list":
		w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tENDPOINT\tSINCE")
		for _, e := range a.registry.List() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.ID, e.Subscription.Endpoint, e.CreatedAt.Format(time.DateTime))
		}
		return w.Flush()
	case "send":
		fs := a.flagSet("push send")
		title := fs.String("title", "", "notification title")
		body := fs.String("body", "", "notification body")
		if done, err := parse(fs, args[1:]); done || err != nil {
			return err
		}
		if err := required("title", *title); err != nil {
			return err
		}
		sender, err := a.pushSender()
		if err != nil {
			return err
		}
		res, err := a.registry.Broadcast(ctx, sender, notify.Message{Title: *title, Body: *body})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Sent %d, failed %d, removed %d.\n", res.Sent, res.Failed, res.Removed)
		return nil
	default:
		return fmt.Errorf("%w: unknown push command %q", ErrUsage, args[0])
	}
}

func (a *App) pushSender() (notify.Sender, error) {
	if a.sender != nil {
		return a.sender, nil
	}
	sender, err := notify.NewWebPushSender(a.cfg, nil)
	if err != nil {
		return nil, err
	}
	a.sender = sender
	return sender, nil
}
