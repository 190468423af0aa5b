package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"memodb/pkg/logger"
	"memodb/pkg/store"
	"memodb/pkg/validation"
)

func main() {
	var path, threadID, resourceID string
	flag.StringVar(&path, "path", "", "database directory to inspect")
	flag.StringVar(&threadID, "thread", "", "dump messages of one thread")
	flag.StringVar(&resourceID, "resource", "", "filter threads by resource")
	flag.Parse()
	if path == "" {
		fmt.Fprintln(os.Stderr, "--path required")
		os.Exit(2)
	}

	logger.InitWithLevel("error")
	st, err := store.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open failed: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if threadID != "" {
		p := validation.ListParams{
			ThreadID:  threadID,
			PerPage:   validation.PerPageAll,
			Direction: validation.DirectionAsc,
		}
		if err := validation.NormalizeList(&p); err != nil {
			fmt.Fprintf(os.Stderr, "bad params: %v\n", err)
			os.Exit(1)
		}
		msgs, _, err := st.ListMessages(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list failed: %v\n", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		for _, m := range msgs {
			_ = enc.Encode(m)
		}
		return
	}

	threads, err := st.ListThreads(resourceID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list threads failed: %v\n", err)
		os.Exit(1)
	}
	for _, th := range threads {
		fmt.Printf("%s\tresource=%s\tlast_seq=%d\ttitle=%q\n", th.ID, th.ResourceID, th.LastSeq, th.Title)
	}
}
