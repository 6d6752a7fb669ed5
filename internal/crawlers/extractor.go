package crawlers

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Extractor 从HTML提取正文文本与超链接
type Extractor struct{}

// NewExtractor 创建提取器
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractLinks 提取<a href>链接并转换为绝对URL
// 仅保留http/https,按文档顺序返回,同一页面内去重;不做其他规范化
func (e *Extractor) ExtractLinks(htmlContent string, baseURL string) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败: %w", err)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("解析baseURL失败: %w", err)
	}

	var hrefs []string
	baseSet := false
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "base":
				// 只有第一个<base href>生效
				if href, ok := attr(n, "href"); ok && !baseSet {
					if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
						base = base.ResolveReference(ref)
						baseSet = true
					}
				}
			case "a":
				if href, ok := attr(n, "href"); ok {
					hrefs = append(hrefs, href)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	seen := make(map[string]struct{}, len(hrefs))
	links := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		href = strings.TrimSpace(href)
		if href == "" {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			continue
		}
		link := abs.String()
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}
	return links, nil
}

// ExtractText 提取页面可读文本,去除脚本样式并合并空行
func (e *Extractor) ExtractText(htmlContent string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", fmt.Errorf("解析HTML失败: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()

	lines := strings.Split(doc.Text(), "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n"), nil
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
