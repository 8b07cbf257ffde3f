package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"driftdb/pkg/buffer"
	"driftdb/pkg/config"
	"driftdb/pkg/disk"
	"driftdb/pkg/dpage"
	"driftdb/pkg/entry"
	"driftdb/pkg/hashindex"
)

func usage() {
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  insert <key> <pageId> <slotNum>")
	fmt.Fprintln(os.Stderr, "  get <key>")
	fmt.Fprintln(os.Stderr, "  remove <key>")
	fmt.Fprintln(os.Stderr, "  backup <dir>")
	fmt.Fprintln(os.Stderr, "  quit")
}

func main() {
	dbFlag := flag.String("db", "data/driftdb.db", "path to the backing database file")
	poolFlag := flag.Int("pool-size", config.DefaultPoolSize, "number of buffer pool frames")
	replacerKFlag := flag.Int("replacer-k", config.DefaultReplacerK, "LRU-K replacer K")
	traceFlag := flag.String("trace", "", "path to append disk scheduler trace lines to")
	flag.Parse()

	if *traceFlag != "" {
		config.TracePath = *traceFlag
	}

	dm, err := disk.Open(*dbFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not open %q: %v\n", *dbFlag, err)
		os.Exit(1)
	}
	bpm := buffer.New(*poolFlag, dm, *replacerKFlag)
	defer bpm.Close()

	table, err := hashindex.New[int64](bpm, dpage.Int64Codec{}, hashindex.XXHash)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not create index: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s ready. header page id %d. type a command, or \"quit\".\n", config.DBName, table.HeaderPageID())
	usage()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		if !runCommand(table, bpm, scanner.Text()) {
			break
		}
	}
}

func runCommand(table *hashindex.ExtendibleHashTable[int64], bpm *buffer.BufferPoolManager, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}

	switch fields[0] {
	case "quit", "exit":
		return false

	case "insert":
		if len(fields) != 4 {
			usage()
			return true
		}
		key, err1 := strconv.ParseInt(fields[1], 10, 64)
		pageID, err2 := strconv.ParseInt(fields[2], 10, 32)
		slot, err3 := strconv.ParseUint(fields[3], 10, 32)
		if err1 != nil || err2 != nil || err3 != nil {
			fmt.Println("insert: bad arguments")
			return true
		}
		rid := entry.RID{PageID: int32(pageID), SlotNum: uint32(slot)}
		if err := table.Insert(key, rid); err != nil {
			fmt.Println("error:", err)
		} else {
			fmt.Println("ok")
		}

	case "get":
		if len(fields) != 2 {
			usage()
			return true
		}
		key, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			fmt.Println("get: bad key")
			return true
		}
		rid, found, err := table.GetValue(key)
		if err != nil {
			fmt.Println("error:", err)
		} else if !found {
			fmt.Println("not found")
		} else {
			fmt.Println(rid.String())
		}

	case "remove":
		if len(fields) != 2 {
			usage()
			return true
		}
		key, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			fmt.Println("remove: bad key")
			return true
		}
		removed, err := table.Remove(key)
		if err != nil {
			fmt.Println("error:", err)
		} else if !removed {
			fmt.Println("not found")
		} else {
			fmt.Println("ok")
		}

	case "backup":
		if len(fields) != 2 {
			usage()
			return true
		}
		if err := bpm.Backup(fields[1]); err != nil {
			fmt.Println("error:", err)
		} else {
			fmt.Println("ok")
		}

	default:
		usage()
	}
	return true
}
