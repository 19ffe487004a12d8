// Package imggen 图片生成模块
package imggen

import (
	"bytes"
	"fmt"
	"image/color"
	"image/png"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// MaxItems 图片最多绘制的条目数
const MaxItems = 10

// RankData 排行榜数据
type RankData struct {
	Rank      int
	Address   string
	Code      string
	Referrals int
}

// LeaderboardConfig 排行榜图片配置
type LeaderboardConfig struct {
	Title       string
	Subtitle    string
	Items       []RankData
	GeneratedAt time.Time
}

// 颜色定义
var (
	bgColor      = color.RGBA{15, 23, 42, 255}    // 深色背景
	topColor     = color.RGBA{30, 64, 120, 255}   // 渐变起始
	cardColor    = color.RGBA{30, 41, 59, 220}    // 卡片背景
	goldColor    = color.RGBA{255, 215, 0, 255}   // 金色
	silverColor  = color.RGBA{192, 192, 192, 255} // 银色
	bronzeColor  = color.RGBA{205, 127, 50, 255}  // 铜色
	textColor    = color.RGBA{255, 255, 255, 255} // 白色文字
	subTextColor = color.RGBA{148, 163, 184, 255} // 灰色文字
	accentColor  = color.RGBA{34, 197, 94, 255}   // 绿色强调
)

var (
	fontOnce    sync.Once
	regularFont *truetype.Font
	boldFont    *truetype.Font
	fontErr     error
)

// loadFonts 解析内置 Go 字体
func loadFonts() error {
	fontOnce.Do(func() {
		regularFont, fontErr = truetype.Parse(goregular.TTF)
		if fontErr != nil {
			return
		}
		boldFont, fontErr = truetype.Parse(gobold.TTF)
	})
	return fontErr
}

func face(f *truetype.Font, size float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{Size: size})
}

// GenerateLeaderboard 生成排行榜图片
func GenerateLeaderboard(cfg LeaderboardConfig) ([]byte, error) {
	if err := loadFonts(); err != nil {
		return nil, fmt.Errorf("加载字体失败: %w", err)
	}

	// 计算图片尺寸
	width := 640
	headerHeight := 120
	itemHeight := 70
	footerHeight := 50
	padding := 20

	itemCount := len(cfg.Items)
	if itemCount > MaxItems {
		itemCount = MaxItems
	}
	if itemCount == 0 {
		itemCount = 1
	}

	height := headerHeight + itemCount*itemHeight + footerHeight + padding*2

	// 创建画布
	dc := gg.NewContext(width, height)

	drawBackground(dc, width, height)
	drawHeader(dc, width, cfg)

	startY := float64(headerHeight + padding)
	if len(cfg.Items) == 0 {
		dc.SetFontFace(face(regularFont, 18))
		dc.SetColor(subTextColor)
		dc.DrawStringAnchored("No referrals yet", float64(width)/2, startY+float64(itemHeight)/2, 0.5, 0.5)
	}
	for i, item := range cfg.Items {
		if i >= MaxItems {
			break
		}
		drawRankItem(dc, width, startY+float64(i*itemHeight), item)
	}

	drawFooter(dc, width, height, cfg.GeneratedAt)

	return exportPNG(dc)
}

// drawBackground 绘制渐变背景
func drawBackground(dc *gg.Context, width, height int) {
	for y := 0; y < height; y++ {
		t := float64(y) / float64(height)
		r := uint8(float64(topColor.R)*(1-t) + float64(bgColor.R)*t)
		g := uint8(float64(topColor.G)*(1-t) + float64(bgColor.G)*t)
		b := uint8(float64(topColor.B)*(1-t) + float64(bgColor.B)*t)
		dc.SetColor(color.RGBA{r, g, b, 255})
		dc.DrawRectangle(0, float64(y), float64(width), 1)
		dc.Fill()
	}
}

// drawHeader 绘制标题
func drawHeader(dc *gg.Context, width int, cfg LeaderboardConfig) {
	dc.SetFontFace(face(boldFont, 28))
	dc.SetColor(textColor)
	dc.DrawStringAnchored(cfg.Title, float64(width)/2, 45, 0.5, 0.5)

	dc.SetFontFace(face(regularFont, 16))
	dc.SetColor(subTextColor)
	dc.DrawStringAnchored(cfg.Subtitle, float64(width)/2, 80, 0.5, 0.5)

	// 分隔线
	dc.SetColor(accentColor)
	dc.SetLineWidth(2)
	dc.DrawLine(50, 110, float64(width-50), 110)
	dc.Stroke()
}

// drawRankItem 绘制排行榜条目
func drawRankItem(dc *gg.Context, width int, y float64, item RankData) {
	cardX := 20.0
	cardW := float64(width - 40)
	cardH := 60.0

	dc.SetColor(cardColor)
	dc.DrawRoundedRectangle(cardX, y, cardW, cardH, 10)
	dc.Fill()

	rankY := y + cardH/2

	var rankColor color.RGBA
	switch item.Rank {
	case 1:
		rankColor = goldColor
	case 2:
		rankColor = silverColor
	case 3:
		rankColor = bronzeColor
	default:
		rankColor = subTextColor
	}

	dc.SetFontFace(face(boldFont, 22))
	dc.SetColor(rankColor)
	dc.DrawStringAnchored(fmt.Sprintf("#%d", item.Rank), cardX+35, rankY, 0.5, 0.5)

	dc.SetFontFace(face(regularFont, 15))
	dc.SetColor(textColor)
	dc.DrawStringAnchored(shortAddress(item.Address), cardX+80, rankY-10, 0, 0.5)

	dc.SetColor(subTextColor)
	code := item.Code
	if code == "" {
		code = "-"
	}
	dc.DrawStringAnchored("code "+code, cardX+80, rankY+12, 0, 0.5)

	dc.SetFontFace(face(boldFont, 18))
	dc.SetColor(accentColor)
	dc.DrawStringAnchored(fmt.Sprintf("%d", item.Referrals), cardX+cardW-30, rankY, 1, 0.5)
}

// drawFooter 绘制底部
func drawFooter(dc *gg.Context, width, height int, generatedAt time.Time) {
	dc.SetFontFace(face(regularFont, 12))
	dc.SetColor(subTextColor)
	footerText := fmt.Sprintf("Generated %s UTC", generatedAt.Format("2006-01-02 15:04"))
	dc.DrawStringAnchored(footerText, float64(width)/2, float64(height-25), 0.5, 0.5)
}

// shortAddress 0x1234…abcd
func shortAddress(address string) string {
	if len(address) <= 14 {
		return address
	}
	return address[:8] + "…" + address[len(address)-6:]
}

// exportPNG 导出为 PNG
func exportPNG(dc *gg.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("编码 PNG 失败: %w", err)
	}
	return buf.Bytes(), nil
}
