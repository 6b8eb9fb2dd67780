// Package roomname generates memorable room identifiers, so a room can be
// read out loud instead of pasted.
package roomname

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

var adjectives = []string{
	"tiny", "happy", "sleepy", "fluffy", "sparkly", "cheery", "silly", "jolly", "cozy", "shiny",
	"golden", "silver", "crimson", "emerald", "purple", "bright", "gentle", "brave", "calm", "swift",
	"silent", "bouncy", "fuzzy", "plucky", "merry", "peppy", "mellow", "sunny", "breezy", "dapper",
}

var creatures = []string{
	"kitten", "puppy", "bunny", "panda", "koala", "fox", "otter", "hedgehog", "squirrel", "hamster",
	"penguin", "flamingo", "pelican", "sparrow", "robin", "toucan", "parrot", "dolphin", "narwhal", "seahorse",
	"dragon", "unicorn", "griffin", "phoenix", "sprite", "pixie", "gnome", "mermaid", "raccoon", "beaver",
}

var things = []string{
	"sunbeam", "stardust", "pepper", "muffin", "bubble", "sprout", "glimmer", "whisker", "echo", "jelly",
	"marble", "maple", "cocoa", "hazel", "breeze", "meadow", "willow", "ember", "poppy", "pixel",
	"lantern", "puddle", "pebble", "cottage", "rocket", "comet", "orbit", "nebula", "canyon", "ridge",
}

// Generate returns a three-word hyphenated room name like
// "cozy-otter-lantern". Collisions are possible but harmless: two parties
// generating the same name simply share a room.
func Generate() string {
	return strings.Join([]string{
		pick(adjectives),
		pick(creatures),
		pick(things),
	}, "-")
}

// pick returns a cryptographically random element of list.
func pick(list []string) string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(list))))
	if err != nil {
		panic(fmt.Sprintf("random source unavailable: %v", err))
	}
	return list[n.Int64()]
}
