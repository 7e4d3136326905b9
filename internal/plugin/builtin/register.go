// Package builtin registers capgate's two compiled-in plugins, evil_twin
// and wifi_crack_automation, with the plugin loader's registry (see
// plugin.Register). Unlike the original Python, which discovers plugin
// modules by import path, capgate links them in directly; RegisterAll binds
// the already-constructed workflow engines to their plugin names so they
// can still be invoked uniformly through ports.PluginLoader.Invoke, whether
// that call comes from the admin HTTP API or the gRPC PluginService.
package builtin

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nexusdevtools/capgate/internal/core/ports"
	"github.com/nexusdevtools/capgate/internal/core/runctx"
	"github.com/nexusdevtools/capgate/internal/plugin"
	"github.com/nexusdevtools/capgate/internal/workflow/crack"
	"github.com/nexusdevtools/capgate/internal/workflow/eviltwin"
)

const (
	EvilTwinPluginName = "evil_twin"
	CrackPluginName    = "wifi_crack_automation"
)

// RegisterAll wires both builtin workflows into the plugin registry.
func RegisterAll(evilTwin *eviltwin.Workflow, crackWF *crack.Workflow) {
	registerEvilTwin(evilTwin)
	registerCrack(crackWF)
}

func registerEvilTwin(wf *eviltwin.Workflow) {
	plugin.Register(EvilTwinPluginName, func(ctx context.Context, rc ports.RunContext, args map[string]string) (bool, error) {
		concrete, ok := rc.(*runctx.RunContext)
		if !ok {
			return false, fmt.Errorf("%s: run context is not a *runctx.RunContext", EvilTwinPluginName)
		}

		opts := eviltwin.Options{
			TargetSSID:  args["ssid"],
			TargetBSSID: args["bssid"],
			AutoSelect:  parseBool(args["auto_select"], true),
			GatewayIP:   args["gateway_ip"],
		}
		if d, ok := parseDuration(args["lure_timeout"]); ok {
			opts.LureTimeout = d
		}

		result := wf.Run(ctx, concrete, opts)
		return result.Err == nil, result.Err
	})
}

func registerCrack(wf *crack.Workflow) {
	plugin.Register(CrackPluginName, func(ctx context.Context, rc ports.RunContext, args map[string]string) (bool, error) {
		concrete, ok := rc.(*runctx.RunContext)
		if !ok {
			return false, fmt.Errorf("%s: run context is not a *runctx.RunContext", CrackPluginName)
		}

		opts := crack.Options{
			Interface:   args["interface"],
			AutoSelect:  parseBool(args["auto_select"], true),
			TargetBSSID: args["bssid"],
			Wordlist:    args["wordlist"],
		}
		if d, ok := parseDuration(args["scan_duration"]); ok {
			opts.ScanDuration = d
		}
		if d, ok := parseDuration(args["capture_window"]); ok {
			opts.CaptureWindow = d
		}
		if n, err := strconv.Atoi(args["deauth_count"]); err == nil {
			opts.DeauthCount = n
		}

		result := wf.Run(ctx, concrete, opts)
		return result.Err == nil, result.Err
	})
}

func parseBool(s string, fallback bool) bool {
	if s == "" {
		return fallback
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return b
}

func parseDuration(s string) (time.Duration, bool) {
	if s == "" {
		return 0, false
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, false
	}
	return d, true
}
