package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"EmberKV/codec"
	"EmberKV/config"
	"EmberKV/storage"
	"EmberKV/storage/engine"
)

// A small interactive shell over a string/string store. Commands:
// put <key> <value>, get <key>, del <key>, keys, size, compact, sync, quit.
func main() {
	confPath := flag.String("conf", "", "path to conf file (optional)")
	dataDir := flag.String("dir", "./data", "path to data directory")
	flag.Parse()

	var opts []storage.Option
	if *confPath != "" {
		if _, err := os.Stat(*confPath); os.IsNotExist(err) {
			log.Fatal("conf file not exist")
		}
		if err := config.Init(*confPath); err != nil {
			log.Fatal(err)
		}
		opts = config.StorageOptions()
		if dir := config.Get().Base.DataDir; dir != "" {
			*dataDir = dir
		}
	}

	if err := os.MkdirAll(*dataDir, 0755); err != nil {
		log.Fatal(err)
	}

	db, err := engine.Open[string, string](*dataDir, codec.String{}, codec.String{}, opts...)
	if err != nil {
		log.Fatal(err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nshutting down...")
		if err := db.Close(); err != nil {
			log.Printf("close: %v", err)
		}
		os.Exit(0)
	}()

	fmt.Printf("emberkv shell, data dir %s\n", *dataDir)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if err := runCommand(db, fields); err != nil {
			if err == errQuit {
				break
			}
			fmt.Printf("error: %v\n", err)
		}
	}

	if err := db.Close(); err != nil {
		log.Printf("close: %v", err)
	}
}

var errQuit = fmt.Errorf("quit")

func runCommand(db *engine.Engine[string, string], fields []string) error {
	switch strings.ToLower(fields[0]) {
	case "put":
		if len(fields) < 3 {
			return fmt.Errorf("usage: put <key> <value>")
		}
		return db.Write(fields[1], strings.Join(fields[2:], " "))
	case "get":
		if len(fields) != 2 {
			return fmt.Errorf("usage: get <key>")
		}
		value, ok, err := db.Read(fields[1])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("(nil)")
			return nil
		}
		fmt.Println(value)
		return nil
	case "del":
		if len(fields) != 2 {
			return fmt.Errorf("usage: del <key>")
		}
		return db.Delete(fields[1])
	case "keys":
		keys, err := db.ReadKeys()
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil
	case "size":
		n, err := db.Size()
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	case "compact":
		return db.Compact()
	case "sync":
		return db.Sync()
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}
