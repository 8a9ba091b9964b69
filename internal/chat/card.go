package chat

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"nexustodo/internal/service"
)

// Card titles.
const (
	TitleDetail = "Task detail"
	TitleList   = "Task list"
)

// ExecutionSucceeded reports whether an execution payload has status
// "success".
func ExecutionSucceeded(execution json.RawMessage) bool {
	return gjson.GetBytes(execution, "status").String() == "success"
}

// ExtractCard builds a task card from an execution payload. The task items
// are taken from the first shape that matches, in this order:
//
//  1. result is an array
//  2. result.updated is an array
//  3. result.deleted is an array
//  4. result is an object with a taskId or a title
//
// Items that do not decode as tasks are skipped. No card is produced when
// the execution did not succeed or nothing remains.
func ExtractCard(execution, action json.RawMessage) (Message, bool) {
	if !ExecutionSucceeded(execution) {
		return Message{}, false
	}

	result := gjson.GetBytes(execution, "result")
	var items []gjson.Result
	switch {
	case result.IsArray():
		items = result.Array()
	case result.Get("updated").IsArray():
		items = result.Get("updated").Array()
	case result.Get("deleted").IsArray():
		items = result.Get("deleted").Array()
	case result.IsObject() && (result.Get("taskId").String() != "" || result.Get("title").String() != ""):
		items = []gjson.Result{result}
	}

	var tasks []service.Task
	for _, item := range items {
		if !item.IsObject() {
			continue
		}
		var t service.Task
		if err := json.Unmarshal([]byte(item.Raw), &t); err != nil {
			continue
		}
		tasks = append(tasks, t)
	}
	if len(tasks) == 0 {
		return Message{}, false
	}

	return Message{
		Role:   RoleAssistant,
		Kind:   KindTasks,
		Status: StatusFinal,
		Title:  cardTitle(action),
		Tasks:  tasks,
	}, true
}

func cardTitle(action json.RawMessage) string {
	intent := gjson.GetBytes(action, "intent").String()
	if intent == "" {
		intent = gjson.GetBytes(action, "action").String()
	}
	if intent == "detail" || intent == "get_task" {
		return TitleDetail
	}
	return TitleList
}
