package scraper

import (
	"bufio"
	"bytes"
	"net"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"georelay/proxypool/model"
)

// ParseLines 解析按行分隔的 "host:port" 文本。
// 空行、注释行以及不含 ':' 的行会被忽略。
func ParseLines(body []byte) []string {
	var out []string
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || !strings.Contains(line, ":") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// listKeys are the object keys searched for the proxy array when the body is not a bare array.
var listKeys = []string{"data", "proxies", "list"}

// ParseJSONList 解析 JSON 格式的代理列表。
// 非法或无法识别的结构返回空切片，不会 panic。
func ParseJSONList(body []byte) []string {
	if !gjson.ValidBytes(body) {
		return nil
	}
	root := gjson.ParseBytes(body)
	list := root
	if !root.IsArray() {
		list = gjson.Result{}
		for _, key := range listKeys {
			if r := root.Get(key); r.IsArray() {
				list = r
				break
			}
		}
		if !list.IsArray() {
			return nil
		}
	}

	var out []string
	list.ForEach(func(_, item gjson.Result) bool {
		switch {
		case item.Type == gjson.String:
			if s := strings.TrimSpace(item.String()); s != "" {
				out = append(out, s)
			}
		case item.IsObject():
			if s := jsonItemAddress(item); s != "" {
				out = append(out, s)
			}
		}
		return true
	})
	return out
}

func jsonItemAddress(item gjson.Result) string {
	var host string
	for _, key := range []string{"ip", "host", "addr", "address"} {
		if v := strings.TrimSpace(item.Get(key).String()); v != "" {
			host = v
			break
		}
	}
	if host == "" {
		return ""
	}

	addr := host
	if port := item.Get("port"); port.Exists() {
		addr = net.JoinHostPort(strings.Trim(host, "[]"), strings.TrimSpace(port.String()))
	}
	if strings.EqualFold(item.Get("protocol").String(), model.ProtocolSOCKS5) {
		addr = model.ProtocolSOCKS5 + "://" + addr
	}
	return addr
}

// rowAddress returns "ip:port" for a table row, or "" for header and filler rows.
func rowAddress(row *goquery.Selection) string {
	cells := row.Find("td")
	if cells.Length() < 2 {
		return ""
	}
	ip := strings.TrimSpace(cells.Eq(0).Text())
	port := strings.TrimSpace(cells.Eq(1).Text())
	if ip == "" || port == "" {
		return ""
	}
	return net.JoinHostPort(ip, port)
}

// toEndpoints converts raw strings into endpoints tagged with the source,
// dropping entries that fail to parse.
func toEndpoints(raws []string, src Source, l zerolog.Logger) []model.Endpoint {
	endpoints := make([]model.Endpoint, 0, len(raws))
	for _, raw := range raws {
		ep, err := model.ParseEndpoint(raw)
		if err != nil {
			l.Debug().Err(err).Str("source", src.Name).Msg("Skipping unparsable entry.")
			continue
		}
		// 来源声明的协议只在条目本身没有 scheme 时生效
		if src.Protocol == model.ProtocolSOCKS5 && !strings.Contains(raw, "://") {
			ep.Protocol = model.ProtocolSOCKS5
		}
		ep.Source = src.Name
		endpoints = append(endpoints, ep)
	}
	return endpoints
}
