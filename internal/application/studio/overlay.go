package studio

import (
	"encoding/json"
	"fmt"

	"flashflow-studio/internal/domain/entity"
	"flashflow-studio/internal/domain/service"
)

// DefaultUndoDepth 撤销栈容量
const DefaultUndoDepth = 10

// SectionID 可编辑区块：钩子、CTA 文案、CTA 字幕、第 i 个分镜/B-roll/贴字
type SectionID struct {
	Kind  service.SectionKind `json:"kind"`
	Index int                 `json:"index,omitempty"`
}

func (s SectionID) String() string {
	if s.Kind.Indexed() {
		return fmt.Sprintf("%s[%d]", s.Kind, s.Index)
	}
	return string(s.Kind)
}

// SectionValue 区块的新值：文本或整段分镜
type SectionValue struct {
	Text string       `json:"text,omitempty"`
	Beat *entity.Beat `json:"beat,omitempty"`
}

// Direction 分镜移动方向
type Direction int

const (
	DirectionUp   Direction = -1
	DirectionDown Direction = 1
)

type overlayKey struct {
	seq       int
	variation int
}

type undoEntry struct {
	section  string
	snapshot *entity.Candidate
}

// EditOverlay 选中候选的可编辑深拷贝，附带有界撤销栈
type EditOverlay struct {
	key         overlayKey
	base        *entity.Candidate
	content     *entity.Candidate
	undo        []undoEntry
	depth       int
	beatSeconds int
	// revision 每次修改递增，用于识别过期的异步结果
	revision int
}

func newEditOverlay(key overlayKey, base *entity.Candidate, depth, beatSeconds int) *EditOverlay {
	if depth <= 0 {
		depth = DefaultUndoDepth
	}
	if beatSeconds <= 0 {
		beatSeconds = entity.DefaultBeatSeconds
	}
	return &EditOverlay{key: key, base: base.Clone(), content: base.Clone(), depth: depth, beatSeconds: beatSeconds}
}

// EditPatch 手工编辑相对生成结果的 merge patch；评分不算编辑，无差异返回 nil
func (o *EditOverlay) EditPatch() (json.RawMessage, error) {
	base, cur := o.base.Clone(), o.content.Clone()
	base.Scoring, cur.Scoring = entity.Unscored(), entity.Unscored()
	return editPatch(base, cur)
}

// Edited 内容是否与生成结果不同，撤销回原样后为 false
func (o *EditOverlay) Edited() bool {
	p, err := o.EditPatch()
	return err == nil && p != nil
}

// Content 当前内容副本
func (o *EditOverlay) Content() *entity.Candidate { return o.content.Clone() }

// UndoLen 撤销栈长度
func (o *EditOverlay) UndoLen() int { return len(o.undo) }

// push 压入修改前快照，超出容量时丢弃最旧的一条
func (o *EditOverlay) push(section string) {
	o.undo = append(o.undo, undoEntry{section: section, snapshot: o.content.Clone()})
	if over := len(o.undo) - o.depth; over > 0 {
		o.undo = append([]undoEntry(nil), o.undo[over:]...)
	}
}

func (o *EditOverlay) touched() {
	o.content.Scoring = entity.Unscored()
	o.revision++
}

// ApplyEdit 修改一个区块
func (o *EditOverlay) ApplyEdit(sec SectionID, val SectionValue) error {
	c := o.content
	switch sec.Kind {
	case service.SectionHook, service.SectionCTALine, service.SectionCTAOverlay:
	case service.SectionBeat:
		if err := checkIndex("beat", sec.Index, len(c.Beats)); err != nil {
			return err
		}
		if val.Beat == nil {
			return invalid("beat", "beat content required")
		}
	case service.SectionBRoll:
		if err := checkIndex("b_roll", sec.Index, len(c.BRoll)); err != nil {
			return err
		}
	case service.SectionOverlay:
		if err := checkIndex("overlay", sec.Index, len(c.Overlays)); err != nil {
			return err
		}
	default:
		return invalid("section", "unknown section %q", sec.Kind)
	}

	o.push(sec.String())
	switch sec.Kind {
	case service.SectionHook:
		c.Hook = val.Text
	case service.SectionCTALine:
		c.CTALine = val.Text
	case service.SectionCTAOverlay:
		c.CTAOverlay = val.Text
	case service.SectionBeat:
		b := *val.Beat
		b.Span = c.Beats[sec.Index].Span
		c.Beats[sec.Index] = b
	case service.SectionBRoll:
		c.BRoll[sec.Index] = val.Text
	case service.SectionOverlay:
		c.Overlays[sec.Index] = val.Text
	}
	o.touched()
	return nil
}

// MoveBeat 与相邻分镜交换位置；已在边界时不做任何事
func (o *EditOverlay) MoveBeat(i int, dir Direction) error {
	beats := o.content.Beats
	if err := checkIndex("beat", i, len(beats)); err != nil {
		return err
	}
	if dir != DirectionUp && dir != DirectionDown {
		return invalid("direction", "must be up or down")
	}
	j := i + int(dir)
	if j < 0 || j >= len(beats) {
		return nil
	}
	o.push(fmt.Sprintf("move beat[%d]", i))
	beats[i], beats[j] = beats[j], beats[i]
	o.content.Retime(o.beatSeconds)
	o.touched()
	return nil
}

// DeleteBeat 删除分镜，至少保留一个
func (o *EditOverlay) DeleteBeat(i int) error {
	if err := checkIndex("beat", i, len(o.content.Beats)); err != nil {
		return err
	}
	if len(o.content.Beats) == 1 {
		return invalid("beat", "a candidate must keep at least one beat")
	}
	o.push(fmt.Sprintf("delete beat[%d]", i))
	o.content.Beats = append(o.content.Beats[:i:i], o.content.Beats[i+1:]...)
	o.content.Retime(o.beatSeconds)
	o.touched()
	return nil
}

// AddBeat 在末尾追加分镜
func (o *EditOverlay) AddBeat(b entity.Beat) {
	o.push("add beat")
	o.content.Beats = append(o.content.Beats, b)
	o.content.Retime(o.beatSeconds)
	o.touched()
}

// AddBRoll 追加 B-roll 建议
func (o *EditOverlay) AddBRoll(text string) {
	o.push("add b_roll")
	o.content.BRoll = append(o.content.BRoll, text)
	o.touched()
}

// DeleteBRoll 删除 B-roll 建议
func (o *EditOverlay) DeleteBRoll(i int) error {
	if err := checkIndex("b_roll", i, len(o.content.BRoll)); err != nil {
		return err
	}
	o.push(fmt.Sprintf("delete b_roll[%d]", i))
	o.content.BRoll = append(o.content.BRoll[:i:i], o.content.BRoll[i+1:]...)
	o.touched()
	return nil
}

// AddOverlay 追加贴字建议
func (o *EditOverlay) AddOverlay(text string) {
	o.push("add overlay")
	o.content.Overlays = append(o.content.Overlays, text)
	o.touched()
}

// DeleteOverlay 删除贴字建议
func (o *EditOverlay) DeleteOverlay(i int) error {
	if err := checkIndex("overlay", i, len(o.content.Overlays)); err != nil {
		return err
	}
	o.push(fmt.Sprintf("delete overlay[%d]", i))
	o.content.Overlays = append(o.content.Overlays[:i:i], o.content.Overlays[i+1:]...)
	o.touched()
	return nil
}

// Undo 弹出最近一次快照并整体替换；栈为空时返回 false
func (o *EditOverlay) Undo() bool {
	if len(o.undo) == 0 {
		return false
	}
	last := o.undo[len(o.undo)-1]
	o.undo = o.undo[:len(o.undo)-1]
	o.content = last.snapshot
	o.revision++
	return true
}

// SetScore 写入评分，不进入撤销栈
func (o *EditOverlay) SetScore(s entity.Score) {
	o.content.Scoring = entity.Scored(s)
}

// sectionOf 读取区块当前值
func sectionOf(c *entity.Candidate, sec SectionID) (SectionValue, error) {
	switch sec.Kind {
	case service.SectionHook:
		return SectionValue{Text: c.Hook}, nil
	case service.SectionCTALine:
		return SectionValue{Text: c.CTALine}, nil
	case service.SectionCTAOverlay:
		return SectionValue{Text: c.CTAOverlay}, nil
	case service.SectionBeat:
		if err := checkIndex("beat", sec.Index, len(c.Beats)); err != nil {
			return SectionValue{}, err
		}
		b := c.Beats[sec.Index]
		return SectionValue{Beat: &b}, nil
	case service.SectionBRoll:
		if err := checkIndex("b_roll", sec.Index, len(c.BRoll)); err != nil {
			return SectionValue{}, err
		}
		return SectionValue{Text: c.BRoll[sec.Index]}, nil
	case service.SectionOverlay:
		if err := checkIndex("overlay", sec.Index, len(c.Overlays)); err != nil {
			return SectionValue{}, err
		}
		return SectionValue{Text: c.Overlays[sec.Index]}, nil
	default:
		return SectionValue{}, invalid("section", "unknown section %q", sec.Kind)
	}
}

func checkIndex(field string, i, n int) error {
	if i < 0 || i >= n {
		return invalid(field, "index %d out of range [0,%d)", i, n)
	}
	return nil
}
