// Package framestore holds captured frames between capture and assembly.
//
// Two backends satisfy Store: Durable writes frame_%08d.jpg files into a
// locked per-session namespace under the data directory, and Volatile keeps
// frames in memory. Open is the single place that chooses between them; it
// probes the durable backend and falls back to memory when the probe fails.
package framestore
