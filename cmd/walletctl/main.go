package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"wallet-keystore/internal/storage"
	"wallet-keystore/internal/wallet"
)

func main() {
	// ---- create ----
	createCmd := flag.NewFlagSet("create", flag.ExitOnError)
	createDir := createCmd.String("dir", "./keystore", "secret store directory")
	createMongo := createCmd.String("mongo", "", "MongoDB URI (optional)")
	createDB := createCmd.String("db", "walletdb", "Mongo database name")
	createColl := createCmd.String("coll", "secrets", "Mongo collection name")
	createName := createCmd.String("name", "", "master key nickname")

	// ---- import ----
	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	importDir := importCmd.String("dir", "./keystore", "secret store directory")
	importMongo := importCmd.String("mongo", "", "MongoDB URI (optional)")
	importDB := importCmd.String("db", "walletdb", "Mongo database name")
	importColl := importCmd.String("coll", "secrets", "Mongo collection name")
	importName := importCmd.String("name", "", "master key nickname")

	// ---- list ----
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	listDir := listCmd.String("dir", "./keystore", "secret store directory")
	listMongo := listCmd.String("mongo", "", "MongoDB URI (optional)")
	listDB := listCmd.String("db", "walletdb", "Mongo database name")
	listColl := listCmd.String("coll", "secrets", "Mongo collection name")

	// ---- add-sub ----
	addCmd := flag.NewFlagSet("add-sub", flag.ExitOnError)
	addDir := addCmd.String("dir", "./keystore", "secret store directory")
	addMongo := addCmd.String("mongo", "", "MongoDB URI (optional)")
	addDB := addCmd.String("db", "walletdb", "Mongo database name")
	addColl := addCmd.String("coll", "secrets", "Mongo collection name")
	addID := addCmd.String("id", "", "master key id")
	addName := addCmd.String("name", "", "sub-wallet nickname")

	// ---- archive / restore ----
	archCmd := flag.NewFlagSet("archive", flag.ExitOnError)
	archDir := archCmd.String("dir", "./keystore", "secret store directory")
	archMongo := archCmd.String("mongo", "", "MongoDB URI (optional)")
	archDB := archCmd.String("db", "walletdb", "Mongo database name")
	archColl := archCmd.String("coll", "secrets", "Mongo collection name")
	archID := archCmd.String("id", "", "master key id")
	archIdx := archCmd.Int("index", -1, "sub-wallet index")

	restCmd := flag.NewFlagSet("restore", flag.ExitOnError)
	restDir := restCmd.String("dir", "./keystore", "secret store directory")
	restMongo := restCmd.String("mongo", "", "MongoDB URI (optional)")
	restDB := restCmd.String("db", "walletdb", "Mongo database name")
	restColl := restCmd.String("coll", "secrets", "Mongo collection name")
	restID := restCmd.String("id", "", "master key id")
	restIdx := restCmd.Int("index", -1, "sub-wallet index")

	// ---- switch ----
	switchCmd := flag.NewFlagSet("switch", flag.ExitOnError)
	switchDir := switchCmd.String("dir", "./keystore", "secret store directory")
	switchMongo := switchCmd.String("mongo", "", "MongoDB URI (optional)")
	switchDB := switchCmd.String("db", "walletdb", "Mongo database name")
	switchColl := switchCmd.String("coll", "secrets", "Mongo collection name")
	switchID := switchCmd.String("id", "", "master key id")
	switchIdx := switchCmd.Int("index", 0, "sub-wallet index")

	// ---- delete ----
	delCmd := flag.NewFlagSet("delete", flag.ExitOnError)
	delDir := delCmd.String("dir", "./keystore", "secret store directory")
	delMongo := delCmd.String("mongo", "", "MongoDB URI (optional)")
	delDB := delCmd.String("db", "walletdb", "Mongo database name")
	delColl := delCmd.String("coll", "secrets", "Mongo collection name")
	delID := delCmd.String("id", "", "master key id")

	// ---- mnemonic ----
	mnemCmd := flag.NewFlagSet("mnemonic", flag.ExitOnError)
	mnemDir := mnemCmd.String("dir", "./keystore", "secret store directory")
	mnemMongo := mnemCmd.String("mongo", "", "MongoDB URI (optional)")
	mnemDB := mnemCmd.String("db", "walletdb", "Mongo database name")
	mnemColl := mnemCmd.String("coll", "secrets", "Mongo collection name")
	mnemID := mnemCmd.String("id", "", "master key id")

	// ---- reset ----
	resetCmd := flag.NewFlagSet("reset", flag.ExitOnError)
	resetDir := resetCmd.String("dir", "./keystore", "secret store directory")
	resetMongo := resetCmd.String("mongo", "", "MongoDB URI (optional)")
	resetDB := resetCmd.String("db", "walletdb", "Mongo database name")
	resetColl := resetCmd.String("coll", "secrets", "Mongo collection name")

	if len(os.Args) < 2 {
		usage()
		return
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "create":
		_ = createCmd.Parse(os.Args[2:])
		mgr, err := buildManager(ctx, *createDir, *createMongo, *createDB, *createColl)
		dieIf(err)
		pin, err := readPIN("Choose a PIN: ")
		dieIf(err)
		id, err := mgr.CreateMasterKey(ctx, pin, *createName)
		dieIf(err)
		fmt.Println("created master key", id)

	case "import":
		_ = importCmd.Parse(os.Args[2:])
		mgr, err := buildManager(ctx, *importDir, *importMongo, *importDB, *importColl)
		dieIf(err)
		fmt.Print("Seed phrase: ")
		phrase, err := bufio.NewReader(os.Stdin).ReadString('\n')
		dieIf(err)
		pin, err := readPIN("Choose a PIN: ")
		dieIf(err)
		id, err := mgr.ImportMasterKey(ctx, strings.TrimSpace(phrase), pin, *importName)
		dieIf(err)
		fmt.Println("imported master key", id)

	case "list":
		_ = listCmd.Parse(os.Args[2:])
		mgr, err := buildManager(ctx, *listDir, *listMongo, *listDB, *listColl)
		dieIf(err)
		dieIf(cmdList(ctx, mgr))

	case "add-sub":
		_ = addCmd.Parse(os.Args[2:])
		mgr, err := buildManager(ctx, *addDir, *addMongo, *addDB, *addColl)
		dieIf(err)
		idx, err := mgr.AddSubWallet(ctx, *addID, *addName, nil)
		dieIf(err)
		fmt.Println("added sub-wallet", idx)

	case "archive":
		_ = archCmd.Parse(os.Args[2:])
		mgr, err := buildManager(ctx, *archDir, *archMongo, *archDB, *archColl)
		dieIf(err)
		dieIf(mgr.ArchiveSubWallet(ctx, *archID, *archIdx))

	case "restore":
		_ = restCmd.Parse(os.Args[2:])
		mgr, err := buildManager(ctx, *restDir, *restMongo, *restDB, *restColl)
		dieIf(err)
		dieIf(mgr.RestoreSubWallet(ctx, *restID, *restIdx))

	case "switch":
		_ = switchCmd.Parse(os.Args[2:])
		mgr, err := buildManager(ctx, *switchDir, *switchMongo, *switchDB, *switchColl)
		dieIf(err)
		dieIf(mgr.SwitchWallet(ctx, *switchID, *switchIdx, ""))

	case "delete":
		_ = delCmd.Parse(os.Args[2:])
		mgr, err := buildManager(ctx, *delDir, *delMongo, *delDB, *delColl)
		dieIf(err)
		pin, err := readPIN("PIN: ")
		dieIf(err)
		res, err := mgr.DeleteMasterKey(ctx, *delID, pin)
		dieIf(err)
		if res.WasActive && res.NewActiveID != "" {
			fmt.Println("deleted; active wallet is now", res.NewActiveID)
		} else {
			fmt.Println("deleted")
		}

	case "mnemonic":
		_ = mnemCmd.Parse(os.Args[2:])
		mgr, err := buildManager(ctx, *mnemDir, *mnemMongo, *mnemDB, *mnemColl)
		dieIf(err)
		pin, err := readPIN("PIN: ")
		dieIf(err)
		phrase, err := mgr.GetMnemonic(ctx, *mnemID, pin)
		dieIf(err)
		fmt.Println(phrase)

	case "reset":
		_ = resetCmd.Parse(os.Args[2:])
		mgr, err := buildManager(ctx, *resetDir, *resetMongo, *resetDB, *resetColl)
		dieIf(err)
		dieIf(mgr.FactoryReset(ctx))
		fmt.Println("keystore wiped")

	default:
		usage()
	}
}

// ============ Helper Functions ============

func usage() {
	fmt.Print(`walletctl commands:

  create   --dir path [--mongo URI --db walletdb --coll secrets] [--name nick]
  import   --dir path [--mongo ...] [--name nick]
  list     --dir path [--mongo ...]
  add-sub  --dir path --id masterKeyID [--name nick]
  archive  --dir path --id masterKeyID --index N
  restore  --dir path --id masterKeyID --index N
  switch   --dir path --id masterKeyID [--index N]
  delete   --dir path --id masterKeyID
  mnemonic --dir path --id masterKeyID
  reset    --dir path
`)
}

func buildManager(ctx context.Context, dir, mongoURI, db, coll string) (*wallet.Manager, error) {
	var store storage.SecretStore
	if mongoURI != "" {
		ms, err := storage.NewMongoSecretStore(ctx, mongoURI, db, coll)
		if err != nil {
			return nil, err
		}
		store = ms
	} else {
		store = storage.NewFileSecretStore(dir)
	}
	return wallet.New(wallet.Config{Store: store})
}

func cmdList(ctx context.Context, mgr *wallet.Manager) error {
	info, err := mgr.GetActiveWalletInfo(ctx)
	if err != nil {
		return err
	}
	if info == nil {
		fmt.Println("no wallet")
		return nil
	}
	fmt.Printf("active: %s (%s) sub-wallet %d (%s)\n",
		info.MasterKeyID, info.MasterKeyNickname, info.SubWalletIndex, info.SubWalletNickname)
	fmt.Printf("sub-wallets: %d active, %d archived\n", info.SubWalletCount, info.ArchivedCount)
	return nil
}

func readPIN(prompt string) (string, error) {
	fmt.Print(prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		return string(b), err
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func dieIf(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
