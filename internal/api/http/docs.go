package apihttp

import (
	"html/template"
	"net/http"
	"strings"
)

var docsTemplate = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="zh-CN">
<head>
<meta charset="utf-8">
<title>PT-Gen API</title>
<style>
body { font-family: -apple-system, "Segoe UI", sans-serif; max-width: 860px; margin: 2rem auto; padding: 0 1rem; color: #222; }
code, pre { background: #f5f5f5; border-radius: 4px; padding: 2px 6px; }
pre { padding: 12px; overflow-x: auto; }
table { border-collapse: collapse; width: 100%; }
td, th { border: 1px solid #ddd; padding: 6px 10px; text-align: left; }
footer { margin-top: 2rem; color: #888; font-size: 0.85rem; }
</style>
</head>
<body>
<h1>PT-Gen API</h1>
<p>媒体信息聚合接口：输入资源链接或关键字，返回标准化的媒体简介。</p>

<h2>按链接生成</h2>
<pre>GET /?url=https://movie.douban.com/subject/1292052/</pre>

<h2>按站点和编号生成</h2>
<pre>GET /?source=douban&amp;sid=1292052
GET /?tmdb_id=movie/550</pre>

<h2>搜索</h2>
<pre>GET /?search=肖申克的救赎
GET /?source=imdb&amp;search=Fight+Club</pre>
<p>不指定 source 时根据关键字语言自动选择搜索源：中文走 TMDB，其他走 IMDb。</p>

<h2>支持的站点</h2>
<table>
<tr><th>source</th></tr>
{{range .Sources}}<tr><td>{{.}}</td></tr>
{{end}}</table>

<h2>响应格式</h2>
<p>所有数据响应均为 JSON，携带 <code>success</code>、<code>error</code>、<code>format</code>、<code>version</code>、<code>generate_at</code> 字段。生成失败时 <code>success</code> 为 <code>false</code>，HTTP 状态仍为 200。</p>

<footer>{{.Copyright}} · v{{.Version}}</footer>
</body>
</html>
`))

func (s *Server) handleDocs(w http.ResponseWriter, _ *http.Request) {
	sources := s.sources
	if len(sources) == 0 {
		sources = []string{"douban", "imdb", "tmdb", "bangumi", "steam", "melon"}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	var sb strings.Builder
	err := docsTemplate.Execute(&sb, map[string]any{
		"Sources":   sources,
		"Copyright": "Powered by @" + s.author,
		"Version":   Version,
	})
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	_, _ = w.Write([]byte(sb.String()))
}
