// Package plantuml renders a state model as a PlantUML state diagram.
package plantuml

import (
	"fmt"
	"io"
	"strings"

	hsm "github.com/stateforward/go-hfsm"
)

const activeColor = "#palegreen"

func idFromQualifiedName(qualifiedName string) string {
	return strings.ReplaceAll(strings.ReplaceAll(strings.TrimPrefix(qualifiedName, "/"), "-", "_"), "/", ".")
}

func generateState(builder *strings.Builder, depth int, model *hsm.Model, state hsm.StateID, active func(hsm.StateID) bool) {
	id := idFromQualifiedName(model.QualifiedName(state))
	indent := strings.Repeat(" ", depth*2)
	color := ""
	if active != nil && active(state) {
		color = " " + activeColor
	}
	children := model.Children(state)
	if len(children) == 0 {
		fmt.Fprintf(builder, "%sstate %s%s\n", indent, id, color)
	} else {
		fmt.Fprintf(builder, "%sstate %s%s {\n", indent, id, color)
		for _, child := range children {
			generateState(builder, depth+1, model, child, active)
		}
		if initial := model.InitialState(state); initial != hsm.None {
			fmt.Fprintf(builder, "%s  [*] --> %s\n", indent, idFromQualifiedName(model.QualifiedName(initial)))
		}
		fmt.Fprintf(builder, "%s}\n", indent)
	}
	enter, exit := model.Activities(state)
	if enter > 0 {
		fmt.Fprintf(builder, "%sstate %s: enter / %d %s\n", indent, id, enter, plural(enter))
	}
	if exit > 0 {
		fmt.Fprintf(builder, "%sstate %s: exit / %d %s\n", indent, id, exit, plural(exit))
	}
}

func plural(n int) string {
	if n == 1 {
		return "activity"
	}
	return "activities"
}

func generateTransitions(builder *strings.Builder, model *hsm.Model) {
	for state := range model.States() {
		source := idFromQualifiedName(model.QualifiedName(state))
		if state == model.Root() {
			source = "[*]"
		}
		for priority, target := range model.Targets(state) {
			fmt.Fprintf(builder, "%s ----> %s : %d\n", source, idFromQualifiedName(model.QualifiedName(target)), priority+1)
		}
	}
}

// Generate writes the diagram of model. States for which active reports true
// are highlighted; active may be nil.
func Generate(writer io.Writer, model *hsm.Model, active func(hsm.StateID) bool) error {
	var builder strings.Builder
	fmt.Fprintf(&builder, "@startuml %s\n", model.Name())
	for _, child := range model.Children(model.Root()) {
		generateState(&builder, 0, model, child, active)
	}
	if initial := model.InitialState(model.Root()); initial != hsm.None {
		fmt.Fprintf(&builder, "[*] --> %s\n", idFromQualifiedName(model.QualifiedName(initial)))
	}
	generateTransitions(&builder, model)
	fmt.Fprintln(&builder, "@enduml")
	_, err := io.WriteString(writer, builder.String())
	return err
}
