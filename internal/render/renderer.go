// Package render draws a checkers position as a PNG.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strconv"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"github.com/park285/Cheese-Checkers/internal/checkers"
)

type Options struct {
	// Header and Turn fill the two HUD panels above the board.
	Header string
	Turn   string
	// LastMove is drawn as an overlay (White) or an arrow (Black).
	LastMove *checkers.Move
	// Highlight marks extra squares, e.g. the selected piece.
	Highlight []checkers.Square
	// Flip draws the board from Black's side.
	Flip bool
}

type BoardRenderer interface {
	RenderPNG(ctx context.Context, s *checkers.GameState, opts Options) ([]byte, error)
}

type svgBoardRenderer struct {
	face font.Face
}

func NewSVGBoardRenderer() BoardRenderer {
	return &svgBoardRenderer{face: basicfont.Face7x13}
}

var defaultRenderer = NewSVGBoardRenderer()

// RenderPNG renders s with the shared SVG renderer.
func RenderPNG(ctx context.Context, s *checkers.GameState, opts Options) ([]byte, error) {
	return defaultRenderer.RenderPNG(ctx, s, opts)
}

const (
	squareSize   = 64
	boardSize    = squareSize * checkers.Size
	sideMargin   = 32
	topMargin    = 96
	bottomMargin = 32
	titleHeight  = 30
	turnHeight   = 24
	panelGap     = 8
	gapToBoard   = 14
	panelRadius  = 10
	panelPadding = 18
	titleMin     = 240
	turnMin      = 140
	shadowOffset = 4
)

func (r *svgBoardRenderer) RenderPNG(ctx context.Context, s *checkers.GameState, opts Options) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	origin := image.Point{X: sideMargin, Y: topMargin}
	boardRect := image.Rect(origin.X, origin.Y, origin.X+boardSize, origin.Y+boardSize)
	img := image.NewRGBA(image.Rect(0, 0, boardSize+sideMargin*2, boardSize+topMargin+bottomMargin))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	g := geometry{origin: origin, flip: opts.Flip}
	r.drawHUD(img, opts, boardRect)
	drawBoardShadow(img, boardRect)
	drawSquares(img, g)
	for _, sq := range opts.Highlight {
		if sq.Valid() {
			drawSquareOverlay(img, g.rect(sq), selectionColor)
		}
	}
	drawLastMove(img, s, g, opts.LastMove)
	if err := drawPieces(ctx, img, s, g); err != nil {
		return nil, err
	}
	r.drawCoordinates(img, g)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	backgroundColor    = color.RGBA{R: 22, G: 24, B: 34, A: 255}
	lightSquare        = color.RGBA{R: 233, G: 207, B: 163, A: 255}
	darkSquare         = color.RGBA{R: 124, G: 86, B: 58, A: 255}
	selectionColor     = color.NRGBA{R: 120, G: 200, B: 120, A: 130}
	whiteMoveFill      = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	blackMoveArrow     = color.NRGBA{R: 148, G: 207, B: 255, A: 170}
	hudPanelColor      = color.NRGBA{R: 28, G: 31, B: 46, A: 250}
	hudTurnPanelColor  = color.NRGBA{R: 36, G: 40, B: 60, A: 245}
	hudShadowColor     = color.NRGBA{A: 50}
	hudTextPrimary     = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	hudTurnTextColor   = color.NRGBA{R: 204, G: 210, B: 236, A: 255}
	boardShadowColor   = color.NRGBA{A: 60}
	coordinateTextTint = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
)

// geometry maps board squares to pixels. Unflipped, row 0 (White's home) is
// at the bottom.
type geometry struct {
	origin image.Point
	flip   bool
}

func (g geometry) cell(sq checkers.Square) (x, y int) {
	row, col := checkers.Size-1-sq.Row, sq.Col
	if g.flip {
		row, col = sq.Row, checkers.Size-1-sq.Col
	}
	return g.origin.X + col*squareSize, g.origin.Y + row*squareSize
}

func (g geometry) rect(sq checkers.Square) image.Rectangle {
	x, y := g.cell(sq)
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func (g geometry) center(sq checkers.Square) pointF {
	x, y := g.cell(sq)
	return pointF{X: float64(x + squareSize/2), Y: float64(y + squareSize/2)}
}

func drawBoardShadow(img *image.RGBA, boardRect image.Rectangle) {
	shadow := image.Rect(boardRect.Min.X+4, boardRect.Min.Y+8, boardRect.Max.X+10, boardRect.Max.Y+12)
	imagedraw.Draw(img, shadow, image.NewUniform(boardShadowColor), image.Point{}, imagedraw.Over)
}

func drawSquares(dst imagedraw.Image, g geometry) {
	for row := 0; row < checkers.Size; row++ {
		for col := 0; col < checkers.Size; col++ {
			sq := checkers.Square{Row: row, Col: col}
			clr := lightSquare
			if sq.Playable() {
				clr = darkSquare
			}
			imagedraw.Draw(dst, g.rect(sq), image.NewUniform(clr), image.Point{}, imagedraw.Src)
		}
	}
}

func drawPieces(ctx context.Context, dst imagedraw.Image, s *checkers.GameState, g geometry) error {
	for row := 0; row < checkers.Size; row++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for col := 0; col < checkers.Size; col++ {
			sq := checkers.Square{Row: row, Col: col}
			p := s.PieceAt(sq)
			if p.Empty() {
				continue
			}
			icon, err := renderPieceImage(p, squareSize)
			if err != nil {
				return err
			}
			imagedraw.Draw(dst, g.rect(sq), icon, image.Point{}, imagedraw.Over)
		}
	}
	return nil
}

func drawLastMove(img *image.RGBA, s *checkers.GameState, g geometry, mv *checkers.Move) {
	if mv == nil || !mv.From.Valid() || !mv.To.Valid() {
		return
	}
	if s.PieceAt(mv.To).Color == checkers.Black {
		drawArrow(img, g.center(mv.From), g.center(mv.To), squareSize, blackMoveArrow)
		return
	}
	drawSquareOverlay(img, g.rect(mv.From), whiteMoveFill)
	drawSquareOverlay(img, g.rect(mv.To), whiteMoveFill)
}

func drawSquareOverlay(img *image.RGBA, rect image.Rectangle, clr color.Color) {
	imagedraw.Draw(img, rect, image.NewUniform(clr), image.Point{}, imagedraw.Over)
}

func (r *svgBoardRenderer) drawHUD(img *image.RGBA, opts Options, boardRect image.Rectangle) {
	drawer := &font.Drawer{Dst: img, Face: r.face}

	title := strings.TrimSpace(opts.Header)
	if title == "" {
		title = "White vs Black"
	}
	turn := strings.TrimSpace(opts.Turn)
	if turn == "" {
		turn = "Turn"
	}

	turnBottom := boardRect.Min.Y - gapToBoard
	turnTop := turnBottom - turnHeight
	titleBottom := turnTop - panelGap
	titleTop := titleBottom - titleHeight

	titleWidth := clampInt(drawer.MeasureString(title).Round()+panelPadding*2, titleMin, boardRect.Dx())
	turnWidth := clampInt(drawer.MeasureString(turn).Round()+panelPadding*2, turnMin, boardRect.Dx())

	titleLeft := boardRect.Min.X + (boardRect.Dx()-titleWidth)/2
	titleRect := image.Rect(titleLeft, titleTop, titleLeft+titleWidth, titleBottom)
	turnLeft := boardRect.Min.X + (boardRect.Dx()-turnWidth)/2
	turnRect := image.Rect(turnLeft, turnTop, turnLeft+turnWidth, turnBottom)

	drawRoundedPanel(img, titleRect.Add(image.Pt(0, shadowOffset)), panelRadius, hudShadowColor)
	drawRoundedPanel(img, turnRect.Add(image.Pt(0, shadowOffset)), panelRadius, hudShadowColor)
	drawRoundedPanel(img, titleRect, panelRadius, hudPanelColor)
	drawRoundedPanel(img, turnRect, panelRadius, hudTurnPanelColor)

	title = truncateWithEllipsis(r.face, title, titleRect.Dx()-panelPadding*2)
	turn = truncateWithEllipsis(r.face, turn, turnRect.Dx()-panelPadding*2)
	drawCenteredString(drawer, titleRect, title, hudTextPrimary)
	drawCenteredString(drawer, turnRect, turn, hudTurnTextColor)
}

// drawCoordinates labels rows on the left and columns below the board with
// the same numbers the wire protocol and the client commands use.
func (r *svgBoardRenderer) drawCoordinates(dst imagedraw.Image, g geometry) {
	drawer := &font.Drawer{Dst: dst, Face: r.face, Src: image.NewUniform(coordinateTextTint)}
	ascent := r.face.Metrics().Ascent.Ceil()
	for i := 0; i < checkers.Size; i++ {
		_, y := g.cell(checkers.Square{Row: i, Col: 0})
		drawCenteredText(drawer, strconv.Itoa(i), g.origin.X-sideMargin/2, y+squareSize/2+ascent/2)

		x, _ := g.cell(checkers.Square{Row: 0, Col: i})
		drawCenteredText(drawer, strconv.Itoa(i), x+squareSize/2, g.origin.Y+boardSize+ascent+4)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}
