package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/loykin/bringup/pkg/client"
)

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func printStatusTable(sts []client.ServiceStatus) {
	fmt.Printf("%-14s %-8s %-6s %-10s %s\n", "SERVICE", "PID", "PORT", "STATE", "STARTED")
	for _, st := range sts {
		port := "-"
		if st.Port > 0 {
			port = strconv.Itoa(st.Port)
		}
		started := "-"
		if !st.StartedAt.IsZero() {
			started = st.StartedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-14s %-8d %-6s %-10s %s\n", st.Name, st.PID, port, st.State, started)
	}
}

func joinInts(xs []int) string {
	if len(xs) == 0 {
		return "-"
	}
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ", ")
}
