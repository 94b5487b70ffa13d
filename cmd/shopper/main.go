package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"storefront/pkg/auth"
	"storefront/pkg/cart"
	"storefront/pkg/config"
	"storefront/pkg/logger"
	"storefront/pkg/otel"
	"storefront/pkg/shopper"
)

const usage = `usage: shopper [-env file] <command> [args]

commands:
  login -user NAME -password PW
  logout
  cart                          list every line in the cart
  add -product ID -name N -price P [-qty Q]
  remove LINE_ID
  address                       show the saved address
  address -street S -city C -state ST -country CO -postal PC
  order [PRODUCT_ID...]         order the given products, or the whole cart
`

func main() {
	envFile := flag.String("env", ".env", "Optional .env file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadClient(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(os.Stderr, logger.ParseLevel(cfg.LogLevel), "shopper", otel.GetTraceID)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, log, flag.Args()); err != nil {
		if cart.IsAuth(err) {
			fmt.Fprintln(os.Stderr, "not logged in: run `shopper login`")
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func tokenPath(cfg config.Client) (string, error) {
	if cfg.TokenFile != "" {
		return cfg.TokenFile, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "storefront", "token.yaml"), nil
}

func run(ctx context.Context, cfg config.Client, log *logger.Logger, args []string) error {
	path, err := tokenPath(cfg)
	if err != nil {
		return err
	}
	tokens, err := auth.NewFile(path)
	if err != nil {
		return err
	}
	s := shopper.New(shopper.Config{
		BaseURL:   cfg.BaseURL,
		PageLimit: cfg.PageLimit,
		Debounce:  cfg.Debounce,
	}, tokens, log)

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		user := fs.String("user", "", "Username")
		password := fs.String("password", "", "Password")
		fs.Parse(rest)
		if *user == "" {
			return errors.New("login: -user is required")
		}
		if err := s.Login(ctx, *user, *password); err != nil {
			return err
		}
		fmt.Println("logged in as", *user)
		return nil
	case "logout":
		return s.Logout(ctx)
	}

	a, err := s.Current()
	if err != nil {
		return err
	}
	err = dispatch(ctx, a, cmd, rest)
	if cart.IsAuth(err) {
		if xerr := s.Expire(ctx); xerr != nil {
			log.Warn(ctx, "clear token", "error", xerr)
		}
	}
	return err
}

func dispatch(ctx context.Context, a *shopper.Active, cmd string, args []string) error {
	switch cmd {
	case "cart":
		if err := loadAll(ctx, a); err != nil {
			return err
		}
		printCart(a)
		return nil

	case "add":
		fs := flag.NewFlagSet("add", flag.ExitOnError)
		id := fs.String("product", "", "Product ID")
		name := fs.String("name", "", "Product name")
		price := fs.String("price", "0", "Unit price")
		qty := fs.Int("qty", 1, "Quantity")
		fs.Parse(args)
		if *id == "" {
			return errors.New("add: -product is required")
		}
		p, err := decimal.NewFromString(*price)
		if err != nil {
			return fmt.Errorf("add: price: %w", err)
		}
		l, err := a.Cart.AddItem(ctx, cart.Product{ID: *id, Name: *name, Price: p}, *qty)
		if err != nil {
			return err
		}
		fmt.Printf("line %s: %s x%d\n", l.ID, l.Product.ID, l.Quantity)
		return nil

	case "remove":
		if len(args) != 1 {
			return errors.New("remove: expected LINE_ID")
		}
		return a.Cart.RemoveItem(ctx, args[0])

	case "address":
		if len(args) == 0 {
			if err := a.Cart.LoadAddress(ctx); err != nil {
				return err
			}
			addr := a.Cart.Address()
			if addr.IsZero() {
				fmt.Println("no address saved")
				return nil
			}
			fmt.Printf("%s\n%s, %s %s\n%s\n", addr.Street, addr.City, addr.State, addr.PostalCode, addr.Country)
			return nil
		}
		fs := flag.NewFlagSet("address", flag.ExitOnError)
		var addr cart.Address
		fs.StringVar(&addr.Street, "street", "", "Street")
		fs.StringVar(&addr.City, "city", "", "City")
		fs.StringVar(&addr.State, "state", "", "State")
		fs.StringVar(&addr.Country, "country", "", "Country")
		fs.StringVar(&addr.PostalCode, "postal", "", "Postal code")
		fs.Parse(args)
		return a.Cart.SaveAddress(ctx, addr)

	case "order":
		if err := loadAll(ctx, a); err != nil {
			return err
		}
		ids := args
		if len(ids) == 0 {
			for _, l := range a.Store.Lines() {
				ids = append(ids, l.Product.ID)
			}
		}
		for _, id := range ids {
			if !a.Store.IsSelected(id) {
				a.Store.ToggleSelection(id)
			}
		}
		r, err := a.Checkout.Place(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("order %s placed: %s (%d lines)\n", r.OrderID, r.Total.StringFixed(2), len(r.Lines))
		for _, id := range r.FailedRemovals {
			fmt.Printf("warning: line %s is still in the server cart\n", id)
		}
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func loadAll(ctx context.Context, a *shopper.Active) error {
	if err := a.Cart.Refresh(ctx); err != nil {
		return err
	}
	for a.Cart.HasMore() {
		if err := a.Cart.LoadMore(ctx); err != nil {
			return err
		}
	}
	return nil
}

func printCart(a *shopper.Active) {
	if a.Store.Len() == 0 {
		fmt.Println("cart is empty")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tPRODUCT\tNAME\tQTY\tPRICE\tSUBTOTAL")
	total := decimal.Zero
	for _, l := range a.Store.Lines() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", l.ID, l.Product.ID, l.Product.Name, l.Quantity, l.Product.Price.StringFixed(2), l.Subtotal().StringFixed(2))
		total = total.Add(l.Subtotal())
	}
	fmt.Fprintf(tw, "\t\t\t%d\t\t%s\n", a.Store.Units(), total.StringFixed(2))
	tw.Flush()
}
