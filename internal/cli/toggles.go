package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"wes-simulator/internal/config"
)

// toggleKeys 命令行键名到补丁字段
var toggleKeys = map[string]func(p *config.TogglePatch, v *bool){
	"container_arrived":     func(p *config.TogglePatch, v *bool) { p.ContainerArrived = v },
	"create_inbound_order":  func(p *config.TogglePatch, v *bool) { p.CreateInboundOrder = v },
	"create_outbound_order": func(p *config.TogglePatch, v *bool) { p.CreateOutboundOrder = v },
	"inbound_acceptance":    func(p *config.TogglePatch, v *bool) { p.InboundAcceptance = v },
	"complete_accept_order": func(p *config.TogglePatch, v *bool) { p.CompleteAcceptOrder = v },
	"picking":               func(p *config.TogglePatch, v *bool) { p.Picking = v },
}

type togglesOptions struct {
	addr string
	all  bool
}

// NewTogglesCommand 创建 toggles 子命令，通过控制面读写运行中模拟器的开关
func NewTogglesCommand(_ *RootOptions) *cobra.Command {
	opts := &togglesOptions{}
	cmd := &cobra.Command{
		Use:   "toggles",
		Short: "Read or change driver toggles on a running simulator",
	}
	cmd.PersistentFlags().StringVar(&opts.addr, "addr", "http://localhost:8081", "control plane base URL")

	get := &cobra.Command{
		Use:           "get",
		Short:         "Print current toggles",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return callControl(cmd.OutOrStdout(), http.MethodGet, opts.addr+"/mock/config", nil)
		},
	}

	set := &cobra.Command{
		Use:   "set [key=true|false ...]",
		Short: "Change toggles",
		Long: `Change toggles. Keys: container_arrived, create_inbound_order,
create_outbound_order, inbound_acceptance, complete_accept_order, picking.
Use --all to switch every driver on.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.all {
				if len(args) > 0 {
					return NewExitError(ExitCommandError, "--all 不能和 key=value 同时使用")
				}
				return callControl(cmd.OutOrStdout(), http.MethodPost, opts.addr+"/mock/config/all", nil)
			}
			if len(args) == 0 {
				return NewExitError(ExitCommandError, "至少需要一个 key=value 参数或 --all")
			}
			patch, err := parseTogglePatch(args)
			if err != nil {
				return WrapExitError(ExitCommandError, "参数错误", err)
			}
			body, err := json.Marshal(patch)
			if err != nil {
				return err
			}
			return callControl(cmd.OutOrStdout(), http.MethodPut, opts.addr+"/mock/config", body)
		},
	}
	set.Flags().BoolVar(&opts.all, "all", false, "switch every driver on")

	cmd.AddCommand(get, set)
	return cmd
}

// parseTogglePatch 解析 key=bool 参数列表
func parseTogglePatch(args []string) (config.TogglePatch, error) {
	var patch config.TogglePatch
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return patch, fmt.Errorf("%q 不是 key=value 格式", arg)
		}
		assign, known := toggleKeys[strings.TrimSpace(key)]
		if !known {
			return patch, fmt.Errorf("未知开关 %q", key)
		}
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return patch, fmt.Errorf("%s 的值 %q 不是布尔值", key, raw)
		}
		assign(&patch, &v)
	}
	return patch, nil
}

func callControl(out io.Writer, method, url string, body []byte) error {
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return WrapExitError(ExitCommandError, "构造请求失败", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return WrapExitError(ExitFailure, "控制面不可达", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return WrapExitError(ExitFailure, "读取响应失败", err)
	}
	if resp.StatusCode/100 != 2 {
		return NewExitError(ExitFailure, fmt.Sprintf("控制面返回 %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	}

	var toggles config.Toggles
	if err := json.Unmarshal(data, &toggles); err != nil {
		return WrapExitError(ExitFailure, "解析响应失败", err)
	}
	return printToggles(out, toggles)
}

func printToggles(out io.Writer, t config.Toggles) error {
	rows := []struct {
		key string
		on  bool
	}{
		{"container_arrived", t.ContainerArrived},
		{"create_inbound_order", t.CreateInboundOrder},
		{"create_outbound_order", t.CreateOutboundOrder},
		{"inbound_acceptance", t.InboundAcceptance},
		{"complete_accept_order", t.CompleteAcceptOrder},
		{"picking", t.Picking},
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(out, "%-22s %t\n", r.key, r.on); err != nil {
			return err
		}
	}
	return nil
}
