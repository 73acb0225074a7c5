package zone

import (
	"encoding/json"
	"image"
	"testing"

	"go.viam.com/test"
)

func TestZoneEditing(t *testing.T) {
	z := New("bin-1")
	test.That(t, z.Complete(), test.ShouldBeFalse)

	err := z.SetRectBottomRight(Point{10, 10})
	test.That(t, err, test.ShouldBeError, ErrMissingTopLeft)
	err = z.SetDepthUpperLevel(Point{10, 10})
	test.That(t, err, test.ShouldBeError, ErrMissingLowerLevel)

	z.SetRectTopLeft(Point{100, 50})
	test.That(t, z.Rect.Complete(), test.ShouldBeFalse)
	test.That(t, z.SetRectBottomRight(Point{200, 150}), test.ShouldBeNil)
	test.That(t, z.Rect.Complete(), test.ShouldBeTrue)

	rect, ok := z.Rect.Rectangle()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, rect, test.ShouldResemble, image.Rect(100, 50, 200, 150))

	z.SetDepthLowerLevel(Point{120, 60})
	test.That(t, z.SetDepthUpperLevel(Point{130, 70}), test.ShouldBeNil)
	test.That(t, z.Complete(), test.ShouldBeTrue)

	// starting a new rectangle drops the old corner
	z.SetRectTopLeft(Point{1, 1})
	test.That(t, z.Rect.BottomRight, test.ShouldBeNil)
	test.That(t, z.Complete(), test.ShouldBeFalse)
}

func TestAddPointsCycle(t *testing.T) {
	z := New("bin")
	z.AddRectPoint(Point{1, 2})
	z.AddRectPoint(Point{3, 4})
	test.That(t, z.Rect.TopLeft, test.ShouldResemble, Point{1, 2})
	test.That(t, *z.Rect.BottomRight, test.ShouldResemble, Point{3, 4})

	z.AddRectPoint(Point{5, 6})
	test.That(t, z.Rect.TopLeft, test.ShouldResemble, Point{5, 6})
	test.That(t, z.Rect.BottomRight, test.ShouldBeNil)

	z.AddDepthPoint(Point{7, 8})
	z.AddDepthPoint(Point{9, 10})
	test.That(t, z.Depth.Complete(), test.ShouldBeTrue)
	z.AddDepthPoint(Point{11, 12})
	test.That(t, z.Depth.LowerLevel, test.ShouldResemble, Point{11, 12})
	test.That(t, z.Depth.Complete(), test.ShouldBeFalse)
}

func TestFromJSONTolerance(t *testing.T) {
	for _, tc := range []struct {
		name      string
		in        string
		wantRect  bool
		wantBR    bool
		wantDepth bool
		wantUpper bool
	}{
		{"full", `{"Name":"a","Rect":{"TopLeft":{"X":1,"Y":2},"BottomRight":{"X":3,"Y":4}},"Depth":{"LowerLevel":{"X":5,"Y":6},"UpperLevel":{"X":7,"Y":8}}}`, true, true, true, true},
		{"nulls", `{"Name":"a","Rect":null,"Depth":null}`, false, false, false, false},
		{"missing keys", `{"Name":"a"}`, false, false, false, false},
		{"top left only", `{"Name":"a","Rect":{"TopLeft":{"X":1,"Y":2},"BottomRight":null}}`, true, false, false, false},
		{"bottom right without top left", `{"Name":"a","Rect":{"BottomRight":{"X":3,"Y":4}}}`, false, false, false, false},
		{"point missing Y", `{"Name":"a","Rect":{"TopLeft":{"X":1}}}`, false, false, false, false},
		{"upper without lower", `{"Name":"a","Depth":{"LowerLevel":null,"UpperLevel":{"X":7,"Y":8}}}`, false, false, false, false},
		{"lower only", `{"Name":"a","Depth":{"LowerLevel":{"X":5,"Y":6}}}`, false, false, true, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			z, err := FromJSON(json.RawMessage(tc.in))
			test.That(t, err, test.ShouldBeNil)
			test.That(t, z.Name, test.ShouldEqual, "a")
			test.That(t, z.Rect != nil, test.ShouldEqual, tc.wantRect)
			test.That(t, z.Rect.Complete(), test.ShouldEqual, tc.wantBR)
			test.That(t, z.Depth != nil, test.ShouldEqual, tc.wantDepth)
			test.That(t, z.Depth.Complete(), test.ShouldEqual, tc.wantUpper)
		})
	}
}

func TestFromJSONValues(t *testing.T) {
	z, err := FromJSON(json.RawMessage(`{"Name":"screws","Amount":4,"Image":"screw.jpg","Rect":{"TopLeft":{"X":10,"Y":20},"BottomRight":{"X":30,"Y":40}}}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, z.Amount, test.ShouldEqual, 4)
	test.That(t, *z.Image, test.ShouldEqual, "screw.jpg")
	test.That(t, z.Rect.TopLeft, test.ShouldResemble, Point{10, 20})
	test.That(t, *z.Rect.BottomRight, test.ShouldResemble, Point{30, 40})

	_, err = FromJSON(json.RawMessage(`{"Rect":null}`))
	test.That(t, err, test.ShouldBeError, ErrMissingName)
	_, err = FromJSON(json.RawMessage(`{"Name":"","Amount":2}`))
	test.That(t, err, test.ShouldBeError, ErrMissingName)
	_, err = FromJSON(json.RawMessage(`[1,2]`))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestListRoundTripKeepsFormat(t *testing.T) {
	in := `[
		{"Name":"one","Rect":{"TopLeft":{"X":1,"Y":2},"BottomRight":{"X":3,"Y":4}},"Depth":{"LowerLevel":{"X":5,"Y":6},"UpperLevel":null}},
		{"Rect":null},
		{"Name":"","Amount":2},
		{"Name":"two","Rect":null,"Depth":null}
	]`
	zones, err := ListFromJSON([]byte(in))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, zones, test.ShouldHaveLength, 2)

	out, err := ListToJSON(zones)
	test.That(t, err, test.ShouldBeNil)

	var generic []map[string]interface{}
	test.That(t, json.Unmarshal(out, &generic), test.ShouldBeNil)
	test.That(t, generic, test.ShouldHaveLength, 2)
	test.That(t, generic[0]["Name"], test.ShouldEqual, "one")
	test.That(t, generic[0]["Image"], test.ShouldBeNil)
	test.That(t, generic[1]["Rect"], test.ShouldBeNil)

	depth := generic[0]["Depth"].(map[string]interface{})
	test.That(t, depth["UpperLevel"], test.ShouldBeNil)
	lower := depth["LowerLevel"].(map[string]interface{})
	test.That(t, lower["X"], test.ShouldEqual, 5.0)

	again, err := ListFromJSON(out)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again, test.ShouldResemble, zones)
}

func TestUnmarshalJSON(t *testing.T) {
	var z Zone
	err := json.Unmarshal([]byte(`{"Name":"x","Depth":{"LowerLevel":{"X":1,"Y":1},"UpperLevel":{"X":2,"Y":2}}}`), &z)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, z.Depth.Complete(), test.ShouldBeTrue)

	err = json.Unmarshal([]byte(`{}`), &z)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestClone(t *testing.T) {
	z := New("a")
	z.SetRectTopLeft(Point{1, 1})
	test.That(t, z.SetRectBottomRight(Point{2, 2}), test.ShouldBeNil)
	c := z.Clone()
	c.Rect.BottomRight.X = 99
	test.That(t, z.Rect.BottomRight.X, test.ShouldEqual, 2)
	test.That(t, (*Zone)(nil).Clone(), test.ShouldBeNil)
}

func TestListToJSONEmpty(t *testing.T) {
	out, err := ListToJSON(nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldEqual, "[]")
}
